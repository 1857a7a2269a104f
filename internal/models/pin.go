package models

import "time"

// Pin is an access code scoped to one lock. Temporary pins are only valid
// inside [StartTime, EndTime].
type Pin struct {
	BaseModel

	LockID      string     `gorm:"type:uuid;not null;uniqueIndex:idx_pin_lock_code" json:"lock_id"`
	Lock        *Lock      `gorm:"foreignKey:LockID;constraint:OnDelete:CASCADE" json:"-"`
	Code        string     `gorm:"size:10;not null;uniqueIndex:idx_pin_lock_code" json:"code"`
	CreatedByID *string    `gorm:"type:uuid" json:"created_by_id"`
	CreatedBy   *User      `gorm:"foreignKey:CreatedByID;constraint:OnDelete:SET NULL" json:"created_by,omitempty"`
	IsTemporary bool       `gorm:"default:false" json:"is_temporary"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	IsActive    bool       `gorm:"default:true;index" json:"is_active"`
}

// ValidAt reports whether an active pin grants access at now. The window is
// evaluated live so a stale IsActive flag on an expired temporary pin never
// grants access.
func (p *Pin) ValidAt(now time.Time) bool {
	if p == nil || !p.IsActive {
		return false
	}
	if !p.IsTemporary {
		return true
	}
	if p.StartTime == nil || p.EndTime == nil {
		return false
	}
	return !now.Before(*p.StartTime) && !now.After(*p.EndTime)
}
