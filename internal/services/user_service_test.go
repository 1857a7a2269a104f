package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/lockgate/internal/database/testutil"
	"github.com/charlesng35/lockgate/pkg/crypto"
)

func TestUserRegister(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewUserService(db)
	require.NoError(t, err)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Username: " alice ", Email: "Alice@Example.com", Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "alice@example.com", user.Email)
	require.True(t, user.IsActive)
	require.False(t, user.IsSuperuser)
	require.NotEqual(t, "correct horse", user.Password)
	require.True(t, crypto.VerifyPassword(user.Password, "correct horse"))

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Password: "other"})
	require.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.Register(ctx, RegisterInput{Username: "", Password: "x"})
	require.Error(t, err)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob"})
	require.Error(t, err)

	got, err := svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = svc.GetByID(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserSetActive(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewUserService(db)
	require.NoError(t, err)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Username: "carol", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, svc.SetActive(ctx, user.ID, false))
	got, err := svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	require.ErrorIs(t, svc.SetActive(ctx, "missing", true), ErrUserNotFound)
}
