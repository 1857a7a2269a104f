package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/database/testutil"
	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/pkg/crypto"
)

func TestCreateSessionGeneratesTokens(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-create")

	tokens, session, err := svc.CreateSession(context.Background(), user.ID, SessionMetadata{
		IPAddress: "10.0.0.1 ",
		UserAgent: "unit-test",
	})
	require.NoError(t, err)

	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, int(time.Hour.Seconds()), tokens.ExpiresIn)
	require.Equal(t, user.ID, session.UserID)
	require.Equal(t, "10.0.0.1", session.IPAddress)
	require.Equal(t, "unit-test", session.UserAgent)

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.Equal(t, tokens.RefreshToken, reloaded.RefreshToken)
	require.True(t, reloaded.ExpiresAt.After(clock.Now()))
	require.True(t, reloaded.LastUsedAt.Equal(clock.Now()))
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-refresh")
	ctx := context.Background()

	tokens, session, err := svc.CreateSession(ctx, user.ID, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	newTokens, updated, err := svc.RefreshSession(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, tokens.RefreshToken, newTokens.RefreshToken)
	require.NotEqual(t, tokens.AccessToken, newTokens.AccessToken)
	require.Equal(t, session.ID, updated.ID)
	require.True(t, updated.LastUsedAt.Equal(clock.Now()))

	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshSessionConcurrentRotationSingleWinner(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "user-race")
	ctx := context.Background()

	tokens, _, err := svc.CreateSession(ctx, user.ID, SessionMetadata{})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		success int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, refreshErr := svc.RefreshSession(ctx, tokens.RefreshToken); refreshErr == nil {
				atomic.AddInt32(&success, 1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, success)
}

func TestRefreshSessionExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-expired")
	ctx := context.Background()

	tokens, session, err := svc.CreateSession(ctx, user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Update("expires_at", clock.Now().Add(-time.Minute)).Error)

	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestRevokeSessionPreventsRefresh(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "user-revoke")
	ctx := context.Background()

	tokens, session, err := svc.CreateSession(ctx, user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(ctx, session.ID))
	require.ErrorIs(t, svc.RevokeSession(ctx, session.ID), ErrSessionNotFound)

	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRevokeUserSessionsAndCleanup(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "user-many")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := svc.CreateSession(ctx, user.ID, SessionMetadata{})
		require.NoError(t, err)
	}

	revoked, err := svc.RevokeUserSessions(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, revoked)

	_, _, err = svc.CreateSession(ctx, user.ID, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, removed)

	var remaining int64
	require.NoError(t, db.Model(&models.Session{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)
}

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}

	jwtSvc, err := NewJWTService(JWTConfig{
		Secret:         "test-secret",
		Issuer:         "lockgate-test",
		AccessTokenTTL: time.Hour,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	svc, err := NewSessionService(db, jwtSvc, SessionConfig{
		RefreshTokenTTL: 24 * time.Hour,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	return db, svc, clock
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password")
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}
