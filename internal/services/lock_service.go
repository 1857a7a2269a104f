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

// CreateLockInput describes a new lock.
type CreateLockInput struct {
	Name     string
	Location string
}

// ClaimLockInput assigns an unowned lock to the caller.
type ClaimLockInput struct {
	UUID     string
	Name     string
	Location string
}

// UpdateLockInput enumerates mutable lock attributes.
type UpdateLockInput struct {
	Name     *string
	Location *string
	IsActive *bool
}

// LockService manages lock lifecycle. Creating or claiming a lock always
// creates the owner's role binding in the same transaction.
type LockService struct {
	db    *gorm.DB
	authz Authorizer
}

// NewLockService constructs a LockService.
func NewLockService(db *gorm.DB, authz Authorizer) (*LockService, error) {
	if db == nil {
		return nil, errors.New("lock service: db is required")
	}
	if authz == nil {
		return nil, errors.New("lock service: authorizer is required")
	}
	return &LockService{db: db, authz: authz}, nil
}

// Create registers a lock owned by ownerID.
func (s *LockService) Create(ctx context.Context, ownerID string, input CreateLockInput) (*models.Lock, error) {
	ctx = ensureContext(ctx)

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	lock := &models.Lock{
		Name:     name,
		Location: strings.TrimSpace(input.Location),
		OwnerID:  &ownerID,
		IsActive: true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(lock).Error; err != nil {
			return fmt.Errorf("create lock: %w", err)
		}
		return bindOwner(tx, lock.ID, ownerID)
	})
	if err != nil {
		return nil, fmt.Errorf("lock service: %w", err)
	}
	return lock, nil
}

// Provision registers an unowned lock that a user can later claim. Superuser only.
func (s *LockService) Provision(ctx context.Context, actorID string, input CreateLockInput) (*models.Lock, error) {
	ctx = ensureContext(ctx)

	ok, err := s.authz.IsSuperuser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("lock service: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrForbidden
	}

	lock := &models.Lock{
		Name:     strings.TrimSpace(input.Name),
		Location: strings.TrimSpace(input.Location),
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(lock).Error; err != nil {
		return nil, fmt.Errorf("lock service: provision lock: %w", err)
	}
	return lock, nil
}

// Claim assigns an unowned lock to userID. Concurrent claims have one winner.
func (s *LockService) Claim(ctx context.Context, userID string, input ClaimLockInput) (*models.Lock, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}
	lockUUID := strings.TrimSpace(input.UUID)
	name := strings.TrimSpace(input.Name)
	location := strings.TrimSpace(input.Location)
	if lockUUID == "" {
		return nil, apperrors.NewBadRequest("uuid is required")
	}
	if name == "" || location == "" {
		return nil, apperrors.NewBadRequest("name and location are required")
	}

	var lock models.Lock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&lock, "uuid = ?", lockUUID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLockNotFound
			}
			return fmt.Errorf("load lock: %w", err)
		}
		if lock.OwnerID != nil {
			return ErrLockAlreadyClaimed
		}

		result := tx.Model(&models.Lock{}).
			Where("id = ? AND owner_id IS NULL", lock.ID).
			Updates(map[string]any{
				"owner_id": userID,
				"name":     name,
				"location": location,
			})
		if result.Error != nil {
			return fmt.Errorf("claim lock: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrLockAlreadyClaimed
		}

		lock.OwnerID = &userID
		lock.Name = name
		lock.Location = location
		return bindOwner(tx, lock.ID, userID)
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("lock service: %w", err)
	}
	return &lock, nil
}

// Get returns a lock by its public uuid when the caller may read it.
func (s *LockService) Get(ctx context.Context, userID, lockUUID string) (*models.Lock, error) {
	ctx = ensureContext(ctx)

	lock, err := loadLockByUUID(ctx, s.db, lockUUID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, userID, permissions.LockResource{Lock: lock}, permissions.ActionRead); err != nil {
		return nil, err
	}
	return lock, nil
}

// FindByUUID resolves a lock without authorization. Device-facing paths authorize by API key instead.
func (s *LockService) FindByUUID(ctx context.Context, lockUUID string) (*models.Lock, error) {
	return loadLockByUUID(ensureContext(ctx), s.db, lockUUID)
}

// Update modifies lock attributes. Requires lock management rights.
func (s *LockService) Update(ctx context.Context, userID, lockUUID string, input UpdateLockInput) (*models.Lock, error) {
	ctx = ensureContext(ctx)

	lock, err := loadLockByUUID(ctx, s.db, lockUUID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, userID, permissions.LockResource{Lock: lock}, permissions.ActionWrite); err != nil {
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
	if input.Location != nil {
		updates["location"] = strings.TrimSpace(*input.Location)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return lock, nil
	}

	if err := s.db.WithContext(ctx).Model(lock).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("lock service: update lock: %w", err)
	}
	return loadLockByID(ctx, s.db, lock.ID)
}

// Delete removes a lock together with its pins, devices, bindings and logs.
func (s *LockService) Delete(ctx context.Context, userID, lockUUID string) error {
	ctx = ensureContext(ctx)

	lock, err := loadLockByUUID(ctx, s.db, lockUUID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, s.authz, userID, permissions.LockResource{Lock: lock}, permissions.ActionWrite); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dependents := []any{
			&models.AccessLog{},
			&models.Pin{},
			&models.Device{},
			&models.RoleBinding{},
			&models.NetworkConfig{},
		}
		for _, model := range dependents {
			if err := tx.Where("lock_id = ?", lock.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("lock service: delete dependents: %w", err)
			}
		}
		if err := tx.Delete(&models.Lock{}, "id = ?", lock.ID).Error; err != nil {
			return fmt.Errorf("lock service: delete lock: %w", err)
		}
		return nil
	})
}

// bindOwner ensures the owner role binding exists for lockID.
func bindOwner(tx *gorm.DB, lockID, userID string) error {
	var role models.Role
	if err := tx.Take(&role, "name = ?", permissions.RoleOwner.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("owner role not seeded: %w", err)
		}
		return fmt.Errorf("load owner role: %w", err)
	}

	binding := models.RoleBinding{UserID: userID, RoleID: role.ID, LockID: lockID}
	if err := tx.Where(&models.RoleBinding{UserID: userID, RoleID: role.ID, LockID: lockID}).
		FirstOrCreate(&binding).Error; err != nil {
		return fmt.Errorf("bind owner: %w", err)
	}
	return nil
}
