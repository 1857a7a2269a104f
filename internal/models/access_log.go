package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AccessType tags how an access attempt was made.
type AccessType string

const (
	AccessTypePIN    AccessType = "PIN"
	AccessTypeNFC    AccessType = "NFC"
	AccessTypeRFID   AccessType = "RFID"
	AccessTypeMobile AccessType = "MOBILE"
)

// AccessResult is the outcome of an attempt.
type AccessResult string

const (
	AccessResultSuccess AccessResult = "SUCCESS"
	AccessResultFail    AccessResult = "FAIL"
)

// AccessLog is an append-only record of one access attempt. Rows are never updated.
type AccessLog struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	LockID     string         `gorm:"type:uuid;not null;index" json:"lock_id"`
	Lock       *Lock          `gorm:"foreignKey:LockID;constraint:OnDelete:CASCADE" json:"-"`
	UserID     *string        `gorm:"type:uuid;index" json:"user_id"`
	User       *User          `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
	DeviceID   *string        `gorm:"type:uuid;index" json:"device_id"`
	Device     *Device        `gorm:"foreignKey:DeviceID;constraint:OnDelete:SET NULL" json:"-"`
	AccessType AccessType     `gorm:"size:10;not null" json:"access_type"`
	Result     AccessResult   `gorm:"size:10;not null;index" json:"result"`
	Timestamp  time.Time      `gorm:"index;not null" json:"timestamp"`
	Details    string         `json:"details"`
	Context    datatypes.JSON `json:"context,omitempty"`
}

func (a *AccessLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
