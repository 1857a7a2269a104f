package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/models"
)

// Role names seeded at start-up.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleGuest = "guest"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Lock{},
		&models.RoleBinding{},
		&models.NetworkConfig{},
		&models.Pin{},
		&models.Device{},
		&models.AccessLog{},
		&models.TwoFactorConfig{},
		&models.TwoFactorChallenge{},
		&models.Session{},
		&models.CacheEntry{},
	)
}

// SeedData populates the fixed role catalogue.
func SeedData(db *gorm.DB) error {
	roles := []models.Role{
		{
			Name:        RoleOwner,
			Description: "Full control over the lock, its pins, devices and bindings",
		},
		{
			Name:        RoleAdmin,
			Description: "Manages pins and devices of the lock",
		},
		{
			Name:        RoleGuest,
			Description: "Read-only access to the lock",
		},
	}

	for _, role := range roles {
		if err := db.Where(models.Role{Name: role.Name}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
	}

	return nil
}
