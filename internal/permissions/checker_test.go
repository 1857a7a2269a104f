package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/database/testutil"
	"github.com/charlesng35/lockgate/internal/models"
)

type fixture struct {
	db      *gorm.DB
	checker *Checker
	owner   *models.User
	lock    *models.Lock
}

func setupFixture(t *testing.T) fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	checker, err := NewChecker(db)
	require.NoError(t, err)

	owner := createUser(t, db, "owner")
	lock := &models.Lock{Name: "front door", OwnerID: &owner.ID, IsActive: true}
	require.NoError(t, db.Create(lock).Error)

	return fixture{db: db, checker: checker, owner: owner, lock: lock}
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Password: "hashed", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func bind(t *testing.T, db *gorm.DB, user *models.User, lock *models.Lock, roleName string) {
	t.Helper()
	var role models.Role
	require.NoError(t, db.Where("LOWER(name) = LOWER(?)", roleName).Take(&role).Error)
	require.NoError(t, db.Create(&models.RoleBinding{UserID: user.ID, RoleID: role.ID, LockID: lock.ID}).Error)
}

func TestNewCheckerRequiresDB(t *testing.T) {
	_, err := NewChecker(nil)
	require.Error(t, err)
}

func TestAuthorizeOwnerAlwaysAllowed(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	for _, res := range []Resource{LockResource{Lock: f.lock}, Scoped(f.lock, KindPin), Scoped(f.lock, KindAccessLog)} {
		for _, action := range []Action{ActionRead, ActionWrite} {
			decision, err := f.checker.Authorize(ctx, f.owner.ID, res, action)
			require.NoError(t, err)
			require.Equal(t, Allow, decision, "%s %s", res.Kind(), action)
		}
	}

	// a guest binding held by the owner never narrows ownership
	bind(t, f.db, f.owner, f.lock, "guest")
	decision, err := f.checker.Authorize(ctx, f.owner.ID, LockResource{Lock: f.lock}, ActionWrite)
	require.NoError(t, err)
	require.Equal(t, Allow, decision)
}

func TestAuthorizeUnboundUserDenied(t *testing.T) {
	f := setupFixture(t)
	stranger := createUser(t, f.db, "stranger")

	for _, res := range []Resource{LockResource{Lock: f.lock}, Scoped(f.lock, KindDevice)} {
		for _, action := range []Action{ActionRead, ActionWrite} {
			decision, err := f.checker.Authorize(context.Background(), stranger.ID, res, action)
			require.NoError(t, err)
			require.Equal(t, Deny, decision)
		}
	}
}

func TestAuthorizeGuestReadOnly(t *testing.T) {
	f := setupFixture(t)
	guest := createUser(t, f.db, "guest")
	bind(t, f.db, guest, f.lock, "guest")
	ctx := context.Background()

	cases := []struct {
		res    Resource
		action Action
		want   Decision
	}{
		{LockResource{Lock: f.lock}, ActionRead, Allow},
		{LockResource{Lock: f.lock}, ActionWrite, Deny},
		{Scoped(f.lock, KindPin), ActionRead, Allow},
		{Scoped(f.lock, KindPin), ActionWrite, Deny},
		{Scoped(f.lock, KindDevice), ActionWrite, Deny},
	}
	for _, tc := range cases {
		decision, err := f.checker.Authorize(ctx, guest.ID, tc.res, tc.action)
		require.NoError(t, err)
		require.Equal(t, tc.want, decision, "%s %s", tc.res.Kind(), tc.action)
	}
}

func TestAuthorizeAdminCannotWriteLock(t *testing.T) {
	f := setupFixture(t)
	admin := createUser(t, f.db, "admin")
	bind(t, f.db, admin, f.lock, "admin")
	ctx := context.Background()

	decision, err := f.checker.Authorize(ctx, admin.ID, LockResource{Lock: f.lock}, ActionWrite)
	require.NoError(t, err)
	require.Equal(t, Deny, decision)

	decision, err = f.checker.Authorize(ctx, admin.ID, LockResource{Lock: f.lock}, ActionRead)
	require.NoError(t, err)
	require.Equal(t, Allow, decision)

	for _, kind := range []ResourceKind{KindPin, KindDevice, KindNetworkConfig} {
		decision, err = f.checker.Authorize(ctx, admin.ID, Scoped(f.lock, kind), ActionWrite)
		require.NoError(t, err)
		require.Equal(t, Allow, decision, string(kind))
	}
}

func TestAuthorizeGuestBindingNarrowsOtherRoles(t *testing.T) {
	f := setupFixture(t)
	user := createUser(t, f.db, "mixed")
	bind(t, f.db, user, f.lock, "guest")
	bind(t, f.db, user, f.lock, "admin")
	ctx := context.Background()

	for _, kind := range []ResourceKind{KindPin, KindDevice} {
		decision, err := f.checker.Authorize(ctx, user.ID, Scoped(f.lock, kind), ActionWrite)
		require.NoError(t, err)
		require.Equal(t, Deny, decision, string(kind))
	}

	decision, err := f.checker.Authorize(ctx, user.ID, Scoped(f.lock, KindPin), ActionRead)
	require.NoError(t, err)
	require.Equal(t, Allow, decision)

	ok, err := f.checker.HasAllowedRole(ctx, f.lock, user.ID, []Role{RoleOwner, RoleAdmin})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthorizeAdminAndOwnerAliasResolvesToAdmin(t *testing.T) {
	f := setupFixture(t)
	user := createUser(t, f.db, "deputy")
	bind(t, f.db, user, f.lock, "owner")
	bind(t, f.db, user, f.lock, "admin")

	decision, err := f.checker.Authorize(context.Background(), user.ID, LockResource{Lock: f.lock}, ActionWrite)
	require.NoError(t, err)
	require.Equal(t, Deny, decision)
}

func TestEffectiveRole(t *testing.T) {
	require.Equal(t, RoleUnknown, EffectiveRole(nil))
	require.Equal(t, RoleUnknown, EffectiveRole([]Role{RoleUnknown}))
	require.Equal(t, RoleGuest, EffectiveRole([]Role{RoleOwner, RoleAdmin, RoleGuest}))
	require.Equal(t, RoleAdmin, EffectiveRole([]Role{RoleUnknown, RoleOwner, RoleAdmin}))
	require.Equal(t, RoleOwner, EffectiveRole([]Role{RoleUnknown, RoleOwner}))
}

func TestAuthorizeOwnerRoleAlias(t *testing.T) {
	f := setupFixture(t)
	coOwner := createUser(t, f.db, "co-owner")
	bind(t, f.db, coOwner, f.lock, "owner")

	decision, err := f.checker.Authorize(context.Background(), coOwner.ID, LockResource{Lock: f.lock}, ActionWrite)
	require.NoError(t, err)
	require.Equal(t, Allow, decision)
}

func TestAuthorizeUnknownRoleDenied(t *testing.T) {
	f := setupFixture(t)
	user := createUser(t, f.db, "custom")
	role := &models.Role{Name: "Technician"}
	require.NoError(t, f.db.Create(role).Error)
	require.NoError(t, f.db.Create(&models.RoleBinding{UserID: user.ID, RoleID: role.ID, LockID: f.lock.ID}).Error)

	decision, err := f.checker.Authorize(context.Background(), user.ID, Scoped(f.lock, KindPin), ActionRead)
	require.NoError(t, err)
	require.Equal(t, Deny, decision)
}

func TestAuthorizeBindingOnOtherLockDoesNotLeak(t *testing.T) {
	f := setupFixture(t)
	other := &models.Lock{Name: "garage", OwnerID: &f.owner.ID}
	require.NoError(t, f.db.Create(other).Error)

	admin := createUser(t, f.db, "admin")
	bind(t, f.db, admin, other, "admin")

	decision, err := f.checker.Authorize(context.Background(), admin.ID, Scoped(f.lock, KindPin), ActionRead)
	require.NoError(t, err)
	require.Equal(t, Deny, decision)
}

func TestAuthorizeFailsClosedWithoutLock(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	decision, err := f.checker.Authorize(ctx, f.owner.ID, nil, ActionRead)
	require.NoError(t, err)
	require.Equal(t, Deny, decision)

	decision, err = f.checker.Authorize(ctx, f.owner.ID, Scoped(nil, KindPin), ActionRead)
	require.NoError(t, err)
	require.Equal(t, Deny, decision)

	decision, err = f.checker.Authorize(ctx, "", LockResource{Lock: f.lock}, ActionRead)
	require.NoError(t, err)
	require.Equal(t, Deny, decision)
}

func TestAuthorizeDeniesMalformedScopedResource(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	for _, kind := range []ResourceKind{KindLock, "", "firmware"} {
		for _, action := range []Action{ActionRead, ActionWrite} {
			decision, err := f.checker.Authorize(ctx, f.owner.ID, Scoped(f.lock, kind), action)
			require.NoError(t, err)
			require.Equal(t, Deny, decision, "%q %s", kind, action)
		}
	}
}

func TestAuthorizeUnownedLock(t *testing.T) {
	f := setupFixture(t)
	unowned := &models.Lock{Name: "unclaimed"}
	require.NoError(t, f.db.Create(unowned).Error)

	decision, err := f.checker.Authorize(context.Background(), f.owner.ID, LockResource{Lock: unowned}, ActionRead)
	require.NoError(t, err)
	require.Equal(t, Deny, decision)
}

func TestHasAllowedRole(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	manage := []Role{RoleOwner, RoleAdmin}

	ok, err := f.checker.HasAllowedRole(ctx, f.lock, f.owner.ID, manage)
	require.NoError(t, err)
	require.True(t, ok, "owner")

	admin := createUser(t, f.db, "admin")
	bind(t, f.db, admin, f.lock, "ADMIN")

	ok, err = f.checker.HasAllowedRole(ctx, f.lock, admin.ID, manage)
	require.NoError(t, err)
	require.True(t, ok, "admin")

	guest := createUser(t, f.db, "guest")
	bind(t, f.db, guest, f.lock, "guest")
	ok, err = f.checker.HasAllowedRole(ctx, f.lock, guest.ID, manage)
	require.NoError(t, err)
	require.False(t, ok, "guest")

	root := &models.User{Username: "root", Password: "x", IsSuperuser: true, IsActive: true}
	require.NoError(t, f.db.Create(root).Error)
	ok, err = f.checker.HasAllowedRole(ctx, f.lock, root.ID, manage)
	require.NoError(t, err)
	require.True(t, ok, "superuser")

	ok, err = f.checker.HasAllowedRole(ctx, nil, root.ID, manage)
	require.NoError(t, err)
	require.False(t, ok, "nil lock")
}
