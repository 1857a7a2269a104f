package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/database/testutil"
	"github.com/charlesng35/lockgate/internal/events"
	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/internal/permissions"
)

type lockFixture struct {
	db        *gorm.DB
	checker   *permissions.Checker
	owner     *models.User
	admin     *models.User
	guest     *models.User
	stranger  *models.User
	superuser *models.User
	lock      *models.Lock
}

func setupLockFixture(t *testing.T) lockFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	checker, err := permissions.NewChecker(db)
	require.NoError(t, err)

	f := lockFixture{
		db:        db,
		checker:   checker,
		owner:     createUser(t, db, "owner"),
		admin:     createUser(t, db, "admin"),
		guest:     createUser(t, db, "guest"),
		stranger:  createUser(t, db, "stranger"),
		superuser: createUser(t, db, "root"),
	}
	require.NoError(t, db.Model(f.superuser).Update("is_superuser", true).Error)
	f.superuser.IsSuperuser = true

	locks, err := NewLockService(db, checker)
	require.NoError(t, err)
	f.lock, err = locks.Create(context.Background(), f.owner.ID, CreateLockInput{Name: "front door", Location: "hall"})
	require.NoError(t, err)

	bindRole(t, db, f.admin, f.lock, "admin")
	bindRole(t, db, f.guest, f.lock, "guest")
	return f
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Password: "hashed", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func bindRole(t *testing.T, db *gorm.DB, user *models.User, lock *models.Lock, roleName string) *models.RoleBinding {
	t.Helper()
	var role models.Role
	require.NoError(t, db.Where("name = ?", roleName).Take(&role).Error)
	binding := &models.RoleBinding{UserID: user.ID, RoleID: role.ID, LockID: lock.ID}
	require.NoError(t, db.Create(binding).Error)
	return binding
}

func createDevice(t *testing.T, db *gorm.DB, lock *models.Lock, user *models.User, uid string) *models.Device {
	t.Helper()
	device := &models.Device{
		LockID:     lock.ID,
		UserID:     user.ID,
		DeviceType: models.DeviceTypeNFC,
		UID:        uid,
		Name:       "reader " + uid,
		IsActive:   true,
	}
	require.NoError(t, db.Create(device).Error)
	return device
}

func countAccessLogs(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.AccessLog{}).Count(&count).Error)
	return count
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.AccessEvent
	err    error
}

func (p *recordingPublisher) PublishAccess(_ context.Context, event events.AccessEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []events.AccessEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.AccessEvent(nil), p.events...)
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, AccessEntry) (*models.AccessLog, error) {
	return nil, errors.New("sink unavailable")
}
