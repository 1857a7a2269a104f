package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lock is the protected physical resource. UUID is the public identifier and
// never changes; ID is internal.
type Lock struct {
	BaseModel

	UUID     string  `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	Name     string  `json:"name"`
	Location string  `json:"location"`
	OwnerID  *string `gorm:"type:uuid;index" json:"owner_id"`
	Owner    *User   `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL" json:"owner,omitempty"`
	IsActive bool    `gorm:"default:true" json:"is_active"`
}

// BeforeCreate assigns both the internal and public identifiers.
func (l *Lock) BeforeCreate(tx *gorm.DB) error {
	if err := l.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if l.UUID == "" {
		l.UUID = uuid.NewString()
	}
	return nil
}

// IsOwnedBy reports whether userID is the lock's designated owner.
func (l *Lock) IsOwnedBy(userID string) bool {
	return l != nil && l.OwnerID != nil && userID != "" && *l.OwnerID == userID
}

// NetworkConfig holds the Wi-Fi / Bluetooth settings pushed to a lock.
// Password is stored encrypted.
type NetworkConfig struct {
	BaseModel

	LockID        string    `gorm:"type:uuid;uniqueIndex;not null" json:"lock_id"`
	Lock          *Lock     `gorm:"foreignKey:LockID;constraint:OnDelete:CASCADE" json:"-"`
	SSID          string    `gorm:"not null" json:"ssid"`
	Password      string    `gorm:"not null" json:"-"`
	BluetoothName string    `json:"bluetooth_name"`
	UpdatedAt     time.Time `json:"updated_at"`
}
