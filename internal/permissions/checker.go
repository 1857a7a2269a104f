package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/pkg/logger"
	"github.com/charlesng35/lockgate/pkg/metrics"
)

// Checker evaluates lock-scoped authorization using ownership and role bindings.
// It keeps no state between calls.
type Checker struct {
	db *gorm.DB
}

// NewChecker constructs a checker backed by the provided database.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permission checker: db is required")
	}
	return &Checker{db: db}, nil
}

// Authorize decides whether subjectID may perform action on resource.
// Any ambiguity resolves to Deny.
func (c *Checker) Authorize(ctx context.Context, subjectID string, resource Resource, action Action) (Decision, error) {
	ctx = ensureContext(ctx)

	decision, err := c.authorize(ctx, subjectID, resource, action)
	kind := "unknown"
	if resource != nil && resource.Kind().Valid() {
		kind = string(resource.Kind())
	}
	if err != nil {
		metrics.AuthorizationDecisions.WithLabelValues(kind, action.String(), "error").Inc()
		return Deny, err
	}

	metrics.AuthorizationDecisions.WithLabelValues(kind, action.String(), decision.String()).Inc()
	logger.WithModule("permissions").Debug("authorization decision",
		zap.String("subject", subjectID),
		zap.String("resource", kind),
		zap.String("action", action.String()),
		zap.String("decision", decision.String()),
	)
	return decision, nil
}

func (c *Checker) authorize(ctx context.Context, subjectID string, resource Resource, action Action) (Decision, error) {
	if resource == nil || !wellFormed(resource) {
		return Deny, nil
	}
	lock := resource.LockRef()
	if lock == nil || lock.ID == "" {
		return Deny, nil
	}

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return Deny, nil
	}

	if lock.IsOwnedBy(subjectID) {
		return Allow, nil
	}

	role, err := c.boundRole(ctx, lock.ID, subjectID)
	if err != nil {
		return Deny, err
	}
	if role == RoleUnknown {
		return Deny, nil
	}

	if CapabilitiesOf(role).permits(resource.Kind(), action) {
		return Allow, nil
	}
	return Deny, nil
}

// HasAllowedRole reports whether userID may act on lock through superuser
// status, ownership, or an effective bound role that is in allowed.
func (c *Checker) HasAllowedRole(ctx context.Context, lock *models.Lock, userID string, allowed []Role) (bool, error) {
	ctx = ensureContext(ctx)

	if lock == nil || lock.ID == "" {
		return false, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}

	superuser, err := c.IsSuperuser(ctx, userID)
	if err != nil {
		return false, err
	}
	if superuser {
		return true, nil
	}

	if lock.IsOwnedBy(userID) {
		return true, nil
	}

	role, err := c.boundRole(ctx, lock.ID, userID)
	if err != nil {
		return false, err
	}
	if role == RoleUnknown {
		return false, nil
	}
	for _, want := range allowed {
		if role == want {
			return true, nil
		}
	}
	return false, nil
}

// IsSuperuser reports whether userID belongs to an active superuser.
func (c *Checker) IsSuperuser(ctx context.Context, userID string) (bool, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := c.db.WithContext(ctx).
		Select("id", "is_superuser", "is_active").
		Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("permission checker: load user: %w", err)
	}
	return user.IsSuperuser && user.IsActive, nil
}

// rolePrecedence is the fixed order in which held roles are considered.
// The first role held wins, so a guest binding narrows any other binding.
var rolePrecedence = []Role{RoleGuest, RoleAdmin, RoleOwner}

// boundRole returns the effective role userID holds on lockID.
func (c *Checker) boundRole(ctx context.Context, lockID, userID string) (Role, error) {
	roles, err := c.boundRoles(ctx, lockID, userID)
	if err != nil {
		return RoleUnknown, err
	}
	return EffectiveRole(roles), nil
}

// EffectiveRole resolves several bindings on one lock to the single role
// evaluated for them. Unrecognised roles are ignored; none held yields RoleUnknown.
func EffectiveRole(held []Role) Role {
	for _, candidate := range rolePrecedence {
		for _, role := range held {
			if role == candidate {
				return candidate
			}
		}
	}
	return RoleUnknown
}

func (c *Checker) boundRoles(ctx context.Context, lockID, userID string) ([]Role, error) {
	var names []string
	err := c.db.WithContext(ctx).
		Table("role_bindings").
		Joins("JOIN roles ON roles.id = role_bindings.role_id").
		Where("role_bindings.lock_id = ? AND role_bindings.user_id = ?", lockID, userID).
		Pluck("roles.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("permission checker: load role bindings: %w", err)
	}

	roles := make([]Role, 0, len(names))
	for _, name := range names {
		roles = append(roles, ParseRole(name))
	}
	return roles, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
