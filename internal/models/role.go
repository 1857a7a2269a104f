package models

// Role is a globally defined capability label referenced by RoleBinding.
// Names are stored lower-case.
type Role struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
}

// RoleBinding grants a user one role on one lock. A user holds at most one
// instance of a given role per lock.
type RoleBinding struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_role_binding_triple" json:"user_id"`
	RoleID string `gorm:"type:uuid;not null;uniqueIndex:idx_role_binding_triple" json:"role_id"`
	LockID string `gorm:"type:uuid;not null;uniqueIndex:idx_role_binding_triple;index" json:"lock_id"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Role *Role `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"role,omitempty"`
	Lock *Lock `gorm:"foreignKey:LockID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName keeps the table name stable regardless of struct naming.
func (RoleBinding) TableName() string {
	return "role_bindings"
}
