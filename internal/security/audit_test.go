package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/lockgate/internal/app"
	"github.com/charlesng35/lockgate/internal/database/testutil"
	"github.com/charlesng35/lockgate/internal/models"
)

func findCheck(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %s not found", id)
	return Check{}
}

func hardenedConfig() *app.Config {
	return &app.Config{
		Vault: app.VaultConfig{EncryptionKey: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"},
		Auth: app.AuthConfig{
			JWT:       app.JWTSettings{Secret: "0123456789abcdef0123456789abcdef0123456789abcdef", Issuer: "lockgate"},
			Session:   app.SessionSettings{RefreshTTL: 720 * time.Hour},
			TwoFactor: app.TwoFactorSettings{Skew: 1},
		},
		RateLimit: app.RateLimitConfig{ValidatePin: app.RateLimitRule{Requests: 10, Window: time.Minute}},
		Server:    app.ServerConfig{CORSOrigins: []string{"https://dashboard.example.com"}},
	}
}

func TestAuditServiceRunPasses(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	require.NoError(t, db.Create(&models.User{Username: "root", Password: "hashed", IsSuperuser: true, IsActive: true}).Error)

	svc := NewAuditService(db, hardenedConfig())
	fixed := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	result := svc.Run(context.Background())
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 7)
	require.Equal(t, 7, result.Summary[string(StatusPass)], result.Checks)
	require.False(t, result.Failed())
}

func TestAuditServiceFlagsWeakSettings(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	cfg := &app.Config{
		Vault: app.VaultConfig{EncryptionKey: "short"},
		Auth: app.AuthConfig{
			JWT:       app.JWTSettings{Secret: "0123456789abcdef0123456789abcdef"},
			Session:   app.SessionSettings{RefreshTTL: 90 * 24 * time.Hour},
			TwoFactor: app.TwoFactorSettings{Skew: 3},
		},
		Server: app.ServerConfig{CORSOrigins: []string{"*"}},
	}

	result := NewAuditService(db, cfg).Run(context.Background())
	require.True(t, result.Failed())

	require.Equal(t, StatusWarn, findCheck(t, result, "superuser_present").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "jwt_secret_strength").Status)
	require.Equal(t, StatusFail, findCheck(t, result, "vault_encryption_key").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "session_refresh_ttl").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "totp_skew").Status)
	require.Equal(t, StatusFail, findCheck(t, result, "validate_pin_rate_limit").Status)
	require.Equal(t, StatusWarn, findCheck(t, result, "cors_origins").Status)
}

func TestAuditServiceWithoutDependencies(t *testing.T) {
	result := NewAuditService(nil, nil).Run(context.Background())
	require.Equal(t, len(result.Checks), result.Summary[string(StatusWarn)])
}
