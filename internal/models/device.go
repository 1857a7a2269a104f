package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/pkg/crypto"
)

// DeviceType enumerates the supported credential carriers.
type DeviceType string

const (
	DeviceTypeMobile DeviceType = "MOBILE"
	DeviceTypeNFC    DeviceType = "NFC"
	DeviceTypeRFID   DeviceType = "RFID"
)

// Valid reports whether t is a known device type.
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeMobile, DeviceTypeNFC, DeviceTypeRFID:
		return true
	}
	return false
}

// Device is an unattended credentialed actor bound to one lock and owned by one user.
type Device struct {
	BaseModel

	LockID     string     `gorm:"type:uuid;not null;index" json:"lock_id"`
	Lock       *Lock      `gorm:"foreignKey:LockID;constraint:OnDelete:CASCADE" json:"-"`
	UserID     string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	DeviceType DeviceType `gorm:"size:10;not null" json:"device_type"`
	UID        string     `gorm:"uniqueIndex;not null" json:"uid"`
	Name       string     `gorm:"not null" json:"name"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at"`
	APIKey     string     `gorm:"size:64;uniqueIndex;not null" json:"api_key,omitempty"`
}

// BeforeCreate assigns an identifier and generates an API key when absent.
func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if err := d.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if d.APIKey == "" {
		key, err := crypto.GenerateAPIKey()
		if err != nil {
			return err
		}
		d.APIKey = key
	}
	return nil
}
