package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/internal/permissions"
	apperrors "github.com/charlesng35/lockgate/pkg/errors"
)

// CreateDeviceInput describes a device registration.
type CreateDeviceInput struct {
	LockUUID   string
	DeviceType models.DeviceType
	UID        string
	Name       string
}

// UpdateDeviceInput enumerates mutable device attributes.
type UpdateDeviceInput struct {
	Name     *string
	IsActive *bool
}

// DeviceService manages devices and their API keys.
type DeviceService struct {
	db    *gorm.DB
	authz Authorizer
}

// NewDeviceService constructs a DeviceService.
func NewDeviceService(db *gorm.DB, authz Authorizer) (*DeviceService, error) {
	if db == nil {
		return nil, errors.New("device service: db is required")
	}
	if authz == nil {
		return nil, errors.New("device service: authorizer is required")
	}
	return &DeviceService{db: db, authz: authz}, nil
}

// Create registers a device owned by the caller. The returned device carries
// its freshly generated API key.
func (s *DeviceService) Create(ctx context.Context, userID string, input CreateDeviceInput) (*models.Device, error) {
	ctx = ensureContext(ctx)

	lock, err := loadLockByUUID(ctx, s.db, input.LockUUID)
	if err != nil {
		return nil, err
	}
	if err := requireManageRole(ctx, s.authz, lock, userID); err != nil {
		return nil, err
	}

	deviceType := models.DeviceType(strings.ToUpper(strings.TrimSpace(string(input.DeviceType))))
	if !deviceType.Valid() {
		return nil, ErrInvalidDeviceType
	}
	uid := strings.TrimSpace(input.UID)
	name := strings.TrimSpace(input.Name)
	if uid == "" {
		return nil, apperrors.NewBadRequest("uid is required")
	}
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	device := &models.Device{
		LockID:     lock.ID,
		UserID:     strings.TrimSpace(userID),
		DeviceType: deviceType,
		UID:        uid,
		Name:       name,
		IsActive:   true,
	}
	if err := s.db.WithContext(ctx).Create(device).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateDeviceUID
		}
		return nil, fmt.Errorf("device service: create device: %w", err)
	}
	return device, nil
}

// Get returns a device when the caller may read its lock. The API key is not included.
func (s *DeviceService) Get(ctx context.Context, userID, id string) (*models.Device, error) {
	ctx = ensureContext(ctx)

	device, lock, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, userID, permissions.Scoped(lock, permissions.KindDevice), permissions.ActionRead); err != nil {
		return nil, err
	}
	device.APIKey = ""
	return device, nil
}

// Update renames or (de)activates a device. Deactivation takes effect on the next request.
func (s *DeviceService) Update(ctx context.Context, userID, id string, input UpdateDeviceInput) (*models.Device, error) {
	ctx = ensureContext(ctx)

	device, lock, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, userID, permissions.Scoped(lock, permissions.KindDevice), permissions.ActionWrite); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("name cannot be empty")
		}
		updates["name"] = name
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(device).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("device service: update device: %w", err)
		}
	}

	updated, _, err := s.load(ctx, device.ID)
	if err != nil {
		return nil, err
	}
	updated.APIKey = ""
	return updated, nil
}

// SetActive toggles a device on or off.
func (s *DeviceService) SetActive(ctx context.Context, userID, id string, active bool) (*models.Device, error) {
	return s.Update(ctx, userID, id, UpdateDeviceInput{IsActive: &active})
}

// Delete removes a device.
func (s *DeviceService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	device, lock, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(ctx, s.authz, userID, permissions.Scoped(lock, permissions.KindDevice), permissions.ActionWrite); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Device{}, "id = ?", device.ID).Error; err != nil {
		return fmt.Errorf("device service: delete device: %w", err)
	}
	return nil
}

func (s *DeviceService) load(ctx context.Context, id string) (*models.Device, *models.Lock, error) {
	var device models.Device
	err := s.db.WithContext(ctx).Preload("Lock").Take(&device, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("device service: load device: %w", err)
	}
	if device.Lock == nil {
		return nil, nil, ErrLockNotFound
	}
	return &device, device.Lock, nil
}
