package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/internal/permissions"
	"github.com/charlesng35/lockgate/pkg/validator"
)

// CreatePinInput describes a new pin on a lock.
type CreatePinInput struct {
	LockUUID    string
	Code        string
	IsTemporary bool
	StartTime   *time.Time
	EndTime     *time.Time
}

// UpdatePinInput enumerates mutable pin attributes.
type UpdatePinInput struct {
	Code        *string
	IsTemporary *bool
	StartTime   *time.Time
	EndTime     *time.Time
	IsActive    *bool
}

// PinService manages lock pins.
type PinService struct {
	db    *gorm.DB
	authz Authorizer
	now   func() time.Time
}

// NewPinService constructs a PinService.
func NewPinService(db *gorm.DB, authz Authorizer) (*PinService, error) {
	if db == nil {
		return nil, errors.New("pin service: db is required")
	}
	if authz == nil {
		return nil, errors.New("pin service: authorizer is required")
	}
	return &PinService{db: db, authz: authz, now: time.Now}, nil
}

// Create adds a pin. Only owners and admins of the lock may create pins.
func (s *PinService) Create(ctx context.Context, userID string, input CreatePinInput) (*models.Pin, error) {
	ctx = ensureContext(ctx)

	lock, err := loadLockByUUID(ctx, s.db, input.LockUUID)
	if err != nil {
		return nil, err
	}
	if err := requireManageRole(ctx, s.authz, lock, userID); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(input.Code)
	if !validator.IsPinCode(code) {
		return nil, ErrInvalidPinCode
	}
	start, end, err := pinWindow(input.IsTemporary, input.StartTime, input.EndTime)
	if err != nil {
		return nil, err
	}

	creator := strings.TrimSpace(userID)
	pin := &models.Pin{
		LockID:      lock.ID,
		Code:        code,
		CreatedByID: &creator,
		IsTemporary: input.IsTemporary,
		StartTime:   start,
		EndTime:     end,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(pin).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicatePin
		}
		return nil, fmt.Errorf("pin service: create pin: %w", err)
	}
	return pin, nil
}

// Get returns a pin when the caller may read its lock.
func (s *PinService) Get(ctx context.Context, userID, id string) (*models.Pin, error) {
	ctx = ensureContext(ctx)

	pin, lock, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, userID, permissions.Scoped(lock, permissions.KindPin), permissions.ActionRead); err != nil {
		return nil, err
	}
	return pin, nil
}

// Update modifies a pin. The temporal window is revalidated against the merged values.
func (s *PinService) Update(ctx context.Context, userID, id string, input UpdatePinInput) (*models.Pin, error) {
	ctx = ensureContext(ctx)

	pin, lock, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, userID, permissions.Scoped(lock, permissions.KindPin), permissions.ActionWrite); err != nil {
		return nil, err
	}

	code := pin.Code
	if input.Code != nil {
		code = strings.TrimSpace(*input.Code)
		if !validator.IsPinCode(code) {
			return nil, ErrInvalidPinCode
		}
	}
	temporary := pin.IsTemporary
	if input.IsTemporary != nil {
		temporary = *input.IsTemporary
	}
	startIn, endIn := pin.StartTime, pin.EndTime
	if input.StartTime != nil {
		startIn = input.StartTime
	}
	if input.EndTime != nil {
		endIn = input.EndTime
	}
	start, end, err := pinWindow(temporary, startIn, endIn)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"code":         code,
		"is_temporary": temporary,
		"start_time":   start,
		"end_time":     end,
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if err := s.db.WithContext(ctx).Model(pin).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicatePin
		}
		return nil, fmt.Errorf("pin service: update pin: %w", err)
	}

	updated, _, err := s.load(ctx, pin.ID)
	return updated, err
}

// Delete removes a pin.
func (s *PinService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	pin, lock, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(ctx, s.authz, userID, permissions.Scoped(lock, permissions.KindPin), permissions.ActionWrite); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Pin{}, "id = ?", pin.ID).Error; err != nil {
		return fmt.Errorf("pin service: delete pin: %w", err)
	}
	return nil
}

// DeactivateExpired flips is_active on temporary pins whose window has closed.
// Validation never depends on this sweep.
func (s *PinService) DeactivateExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.Pin{}).
		Where("is_temporary = ? AND is_active = ? AND end_time < ?", true, true, s.now().UTC()).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("pin service: deactivate expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PinService) load(ctx context.Context, id string) (*models.Pin, *models.Lock, error) {
	var pin models.Pin
	err := s.db.WithContext(ctx).Preload("Lock").Take(&pin, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrPinNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("pin service: load pin: %w", err)
	}
	if pin.Lock == nil {
		return nil, nil, ErrLockNotFound
	}
	return &pin, pin.Lock, nil
}

// pinWindow returns the bounds to persist. Permanent pins carry none.
func pinWindow(temporary bool, start, end *time.Time) (*time.Time, *time.Time, error) {
	if !temporary {
		return nil, nil, nil
	}
	if start == nil || end == nil || !start.Before(*end) {
		return nil, nil, ErrInvalidPinWindow
	}
	s, e := start.UTC(), end.UTC()
	return &s, &e, nil
}
