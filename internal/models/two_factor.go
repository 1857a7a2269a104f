package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TwoFactorConfig holds a user's TOTP secret (encrypted base32) and whether
// the second factor has been confirmed.
type TwoFactorConfig struct {
	BaseModel

	UserID      string     `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Secret      string     `json:"-"`
	Enabled     bool       `gorm:"default:false" json:"enabled"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
}

// TwoFactorChallenge is a single-use login challenge issued after a
// successful password check.
type TwoFactorChallenge struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	Token     string     `gorm:"uniqueIndex;not null" json:"-"`
	UserID    string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	Used      bool       `gorm:"default:false;index" json:"used"`
	UsedAt    *time.Time `json:"used_at"`
}

func (c *TwoFactorChallenge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ExpiresAt returns the instant after which the challenge is unusable.
func (c *TwoFactorChallenge) ExpiresAt(ttl time.Duration) time.Time {
	return c.CreatedAt.Add(ttl)
}

// ExpiredAt reports whether now is strictly past the challenge expiry.
func (c *TwoFactorChallenge) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.After(c.ExpiresAt(ttl))
}
