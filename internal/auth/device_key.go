package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/pkg/metrics"
)

// ErrInvalidDeviceKey is returned for a missing, unknown or inactive key alike.
var ErrInvalidDeviceKey = errors.New("device auth: invalid api key")

// DeviceContext is the per-request identity of an authenticated device.
type DeviceContext struct {
	Device models.Device
	// Owner is HumanActor only when the owning user exists and is active.
	Owner Actor
}

// Actor returns the device itself as a principal.
func (d *DeviceContext) Actor() Actor {
	if d == nil {
		return UnknownActor()
	}
	return DeviceActor(d.Device.ID)
}

// BelongsTo reports whether the device is registered for lockID.
func (d *DeviceContext) BelongsTo(lockID string) bool {
	return d != nil && lockID != "" && d.Device.LockID == lockID
}

// DeviceKeyValidator authenticates devices by API key.
type DeviceKeyValidator struct {
	db *gorm.DB
}

// NewDeviceKeyValidator constructs a validator over the device table.
func NewDeviceKeyValidator(db *gorm.DB) (*DeviceKeyValidator, error) {
	if db == nil {
		return nil, errors.New("device auth: db is required")
	}
	return &DeviceKeyValidator{db: db}, nil
}

// Validate resolves apiKey to an active device. Results are never cached.
func (v *DeviceKeyValidator) Validate(ctx context.Context, apiKey string) (*DeviceContext, error) {
	ctx = ensureContext(ctx)

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		metrics.DeviceAuthentications.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidDeviceKey
	}

	var device models.Device
	err := v.db.WithContext(ctx).
		Preload("User").
		Where("api_key = ? AND is_active = ?", apiKey, true).
		Take(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.DeviceAuthentications.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidDeviceKey
	}
	if err != nil {
		return nil, fmt.Errorf("device auth: lookup device: %w", err)
	}

	owner := UnknownActor()
	if device.User != nil && device.User.IsActive {
		owner = HumanActor(device.User.ID)
	}

	metrics.DeviceAuthentications.WithLabelValues("valid").Inc()
	return &DeviceContext{Device: device, Owner: owner}, nil
}

// TouchLastUsed records a successful use. A device deactivated in the
// meantime is left untouched.
func (v *DeviceKeyValidator) TouchLastUsed(ctx context.Context, deviceID string, now time.Time) error {
	ctx = ensureContext(ctx)

	err := v.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ? AND is_active = ?", deviceID, true).
		Update("last_used_at", now).Error
	if err != nil {
		return fmt.Errorf("device auth: update last used: %w", err)
	}
	return nil
}
