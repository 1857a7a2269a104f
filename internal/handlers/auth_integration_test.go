package handlers_test

import (
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/lockgate/internal/handlers/testutil"
)

func TestRegisterAndTwoFactorLogin(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "Password123!",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	challenge := env.Challenge("alice", "Password123!")
	require.True(t, challenge.MustSetup)
	require.True(t, strings.HasPrefix(challenge.OTPAuthURL, "otpauth://totp/"))
	require.Contains(t, challenge.OTPAuthURL, "issuer=LockGate")

	w = env.Request(http.MethodPost, "/api/token/2fa-verify", map[string]string{
		"challenge": challenge.Challenge,
		"code":      env.Code("alice"),
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var pair testutil.TokenPair
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &pair)
	require.NotEmpty(t, pair.AccessToken)

	w = env.Request(http.MethodGet, "/api/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me struct {
		Username         string `json:"username"`
		TwoFactorEnabled bool   `json:"two_factor_enabled"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &me)
	require.Equal(t, "alice", me.Username)
	require.True(t, me.TwoFactorEnabled)

	// once enabled, later challenges do not re-provision
	second := env.Challenge("alice", "Password123!")
	require.False(t, second.MustSetup)
	require.Empty(t, second.OTPAuthURL)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("bob", "Password123!", false)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "bob",
		"password": "Password123!",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestChallengeRejectsBadCredentialsUniformly(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("carol", "Password123!", false)

	wrongPassword := env.Request(http.MethodPost, "/api/token/2fa-challenge", map[string]string{
		"username": "carol",
		"password": "nope",
	}, "")
	unknownUser := env.Request(http.MethodPost, "/api/token/2fa-challenge", map[string]string{
		"username": "nobody",
		"password": "nope",
	}, "")

	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	require.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	require.Equal(t, testutil.DecodeResponse(t, wrongPassword).Error, testutil.DecodeResponse(t, unknownUser).Error)
}

func TestVerifyRejectsWrongCodeAndReplay(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("dave", "Password123!", false)

	challenge := env.Challenge("dave", "Password123!")

	w := env.Request(http.MethodPost, "/api/token/2fa-verify", map[string]string{
		"challenge": challenge.Challenge,
		"code":      "000000x",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "auth.mfa_invalid", testutil.DecodeResponse(t, w).Error.Code)

	body := map[string]string{"challenge": challenge.Challenge, "code": env.Code("dave")}
	w = env.Request(http.MethodPost, "/api/token/2fa-verify", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/token/2fa-verify", body, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "auth.challenge_invalid", testutil.DecodeResponse(t, w).Error.Code)
}

func TestVerifyConcurrentRequestsIssueOneTokenPair(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("erin", "Password123!", false)

	challenge := env.Challenge("erin", "Password123!")
	body := map[string]string{"challenge": challenge.Challenge, "code": env.Code("erin")}

	const attempts = 8
	codes := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.Request(http.MethodPost, "/api/token/2fa-verify", body, "").Code
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, code := range codes {
		if code == http.StatusOK {
			successes++
		} else {
			require.Equal(t, http.StatusBadRequest, code)
		}
	}
	require.Equal(t, 1, successes)
}

func TestVerifyRejectsExpiredChallenge(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("frank", "Password123!", false)

	challenge := env.Challenge("frank", "Password123!")
	env.Advance(5*time.Minute + time.Second)

	w := env.Request(http.MethodPost, "/api/token/2fa-verify", map[string]string{
		"challenge": challenge.Challenge,
		"code":      env.Code("frank"),
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "auth.challenge_expired", testutil.DecodeResponse(t, w).Error.Code)
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("gina", "Password123!", false)
	pair := env.Login("gina", "Password123!")

	w := env.Request(http.MethodPost, "/api/token/refresh", map[string]string{"refresh_token": pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rotated testutil.TokenPair
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &rotated)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	w = env.Request(http.MethodPost, "/api/token/refresh", map[string]string{"refresh_token": pair.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/api/me", "/api/locks/abc"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestTwoFactorSetupIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("hank", "Password123!", false)
	pair := env.Login("hank", "Password123!")

	first := env.Request(http.MethodPost, "/api/2fa/setup", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := env.Request(http.MethodPost, "/api/2fa/setup", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b struct {
		OTPAuthURL string `json:"otpauth_url"`
		QRCode     string `json:"qr_code"`
		Enabled    bool   `json:"enabled"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, first).Data, &a)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, second).Data, &b)
	require.Equal(t, a.OTPAuthURL, b.OTPAuthURL)
	require.True(t, strings.HasPrefix(a.QRCode, "data:image/png;base64,"))
	require.True(t, a.Enabled)

	w := env.Request(http.MethodPost, "/api/2fa/disable", map[string]string{"code": "123"}, pair.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPost, "/api/2fa/disable", map[string]string{"code": env.Code("hank")}, pair.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
