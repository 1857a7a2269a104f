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

// CreateRoleBindingInput grants Role to UserID on the lock.
type CreateRoleBindingInput struct {
	UserID   string
	Role     string
	LockUUID string
}

// RoleBindingService grants and revokes per-lock roles. Only the lock owner
// or a superuser may manage bindings.
type RoleBindingService struct {
	db    *gorm.DB
	authz Authorizer
}

// NewRoleBindingService constructs a RoleBindingService.
func NewRoleBindingService(db *gorm.DB, authz Authorizer) (*RoleBindingService, error) {
	if db == nil {
		return nil, errors.New("role binding service: db is required")
	}
	if authz == nil {
		return nil, errors.New("role binding service: authorizer is required")
	}
	return &RoleBindingService{db: db, authz: authz}, nil
}

// Create adds a binding. Granting the owner role requires a superuser.
func (s *RoleBindingService) Create(ctx context.Context, actorID string, input CreateRoleBindingInput) (*models.RoleBinding, error) {
	ctx = ensureContext(ctx)

	lock, err := loadLockByUUID(ctx, s.db, input.LockUUID)
	if err != nil {
		return nil, err
	}
	superuser, err := s.canManage(ctx, lock, actorID)
	if err != nil {
		return nil, err
	}

	role := permissions.ParseRole(input.Role)
	if role == permissions.RoleUnknown {
		return nil, ErrRoleNotFound
	}
	if role == permissions.RoleOwner && !superuser {
		return nil, apperrors.ErrForbidden
	}

	targetID := strings.TrimSpace(input.UserID)
	var user models.User
	if err := s.db.WithContext(ctx).Select("id").Take(&user, "id = ?", targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("role binding service: load user: %w", err)
	}

	var roleRow models.Role
	if err := s.db.WithContext(ctx).Take(&roleRow, "name = ?", role.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("role binding service: load role: %w", err)
	}

	binding := &models.RoleBinding{UserID: user.ID, RoleID: roleRow.ID, LockID: lock.ID}
	if err := s.db.WithContext(ctx).Create(binding).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateRoleBinding
		}
		return nil, fmt.Errorf("role binding service: create binding: %w", err)
	}
	binding.Role = &roleRow
	return binding, nil
}

// Get returns a binding when the caller may read its lock.
func (s *RoleBindingService) Get(ctx context.Context, actorID, id string) (*models.RoleBinding, error) {
	ctx = ensureContext(ctx)

	binding, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, actorID, permissions.Scoped(binding.Lock, permissions.KindRoleBinding), permissions.ActionRead); err != nil {
		return nil, err
	}
	return binding, nil
}

// Delete revokes a binding. The owner binding of the lock's owner is only
// removable by a superuser.
func (s *RoleBindingService) Delete(ctx context.Context, actorID, id string) error {
	ctx = ensureContext(ctx)

	binding, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	superuser, err := s.canManage(ctx, binding.Lock, actorID)
	if err != nil {
		return err
	}

	isOwnerBinding := binding.Role != nil &&
		permissions.ParseRole(binding.Role.Name) == permissions.RoleOwner &&
		binding.Lock.IsOwnedBy(binding.UserID)
	if isOwnerBinding && !superuser {
		return ErrOwnerBindingImmutable
	}

	if err := s.db.WithContext(ctx).Delete(&models.RoleBinding{}, "id = ?", binding.ID).Error; err != nil {
		return fmt.Errorf("role binding service: delete binding: %w", err)
	}
	return nil
}

// canManage reports whether actorID is a superuser, or fails with ErrForbidden
// when the actor is neither superuser nor owner.
func (s *RoleBindingService) canManage(ctx context.Context, lock *models.Lock, actorID string) (bool, error) {
	superuser, err := s.authz.IsSuperuser(ctx, actorID)
	if err != nil {
		return false, fmt.Errorf("role binding service: %w", err)
	}
	if superuser {
		return true, nil
	}
	if !lock.IsOwnedBy(actorID) {
		return false, apperrors.ErrForbidden
	}
	return false, nil
}

func (s *RoleBindingService) load(ctx context.Context, id string) (*models.RoleBinding, error) {
	var binding models.RoleBinding
	err := s.db.WithContext(ctx).
		Preload("Role").
		Preload("Lock").
		Take(&binding, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role binding service: load binding: %w", err)
	}
	if binding.Lock == nil {
		return nil, ErrLockNotFound
	}
	return &binding, nil
}
