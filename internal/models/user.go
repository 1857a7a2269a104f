package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a human identity. Locks are owned through Lock.OwnerID; per-lock
// capabilities come from RoleBinding rows.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"index" json:"email"`
	Password string `gorm:"not null" json:"-"`

	IsSuperuser bool `gorm:"default:false" json:"is_superuser"`
	IsActive    bool `gorm:"default:true" json:"is_active"`

	TwoFactor *TwoFactorConfig `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
