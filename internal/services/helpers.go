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

// Authorizer abstracts the lock authorization engine for services.
type Authorizer interface {
	Authorize(ctx context.Context, subjectID string, resource permissions.Resource, action permissions.Action) (permissions.Decision, error)
	HasAllowedRole(ctx context.Context, lock *models.Lock, userID string, allowed []permissions.Role) (bool, error)
	IsSuperuser(ctx context.Context, userID string) (bool, error)
}

// manageRoles may create pins and devices.
var manageRoles = []permissions.Role{permissions.RoleOwner, permissions.RoleAdmin}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// authorize converts a Deny into ErrForbidden.
func authorize(ctx context.Context, authz Authorizer, userID string, resource permissions.Resource, action permissions.Action) error {
	decision, err := authz.Authorize(ctx, userID, resource, action)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if !decision.Allowed() {
		return apperrors.ErrForbidden
	}
	return nil
}

func requireManageRole(ctx context.Context, authz Authorizer, lock *models.Lock, userID string) error {
	ok, err := authz.HasAllowedRole(ctx, lock, userID, manageRoles)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if !ok {
		return apperrors.ErrForbidden
	}
	return nil
}

func loadLockByID(ctx context.Context, db *gorm.DB, id string) (*models.Lock, error) {
	var lock models.Lock
	err := db.WithContext(ctx).Take(&lock, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lock: %w", err)
	}
	return &lock, nil
}

func loadLockByUUID(ctx context.Context, db *gorm.DB, uuid string) (*models.Lock, error) {
	var lock models.Lock
	err := db.WithContext(ctx).Take(&lock, "uuid = ?", strings.TrimSpace(uuid)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lock: %w", err)
	}
	return &lock, nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
