package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/api"
	"github.com/charlesng35/lockgate/internal/app"
	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/auth/mfa"
	sharedtestutil "github.com/charlesng35/lockgate/internal/database/testutil"
	"github.com/charlesng35/lockgate/internal/events"
	"github.com/charlesng35/lockgate/internal/middleware"
	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/pkg/crypto"
	"github.com/charlesng35/lockgate/pkg/response"
)

// PinRateLimit is the validate_pin budget per minute configured for test environments.
const PinRateLimit = 5

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Services *api.Services
	Events   *RecordingPublisher

	mu      sync.Mutex
	now     time.Time
	secrets map[string]string
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	env := &Env{
		T:       t,
		DB:      sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData()),
		Events:  &RecordingPublisher{},
		now:     time.Now().UTC(),
		secrets: make(map[string]string),
	}

	cfg := &app.Config{
		Vault: app.VaultConfig{EncryptionKey: "0123456789abcdef0123456789abcdef"},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
			TwoFactor: app.TwoFactorSettings{
				Issuer:       "LockGate",
				ChallengeTTL: 5 * time.Minute,
				Skew:         1,
			},
		},
		RateLimit: app.RateLimitConfig{
			ValidatePin: app.RateLimitRule{Requests: PinRateLimit, Window: time.Minute},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(env.DB, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	env.Services, err = api.NewServices(env.DB, cfg, env.Events, mfa.WithClock(env.Now))
	require.NoError(t, err)

	rateStore := middleware.NewMemoryRateStore()
	t.Cleanup(rateStore.Close)

	env.Router, err = api.NewRouter(cfg, jwtSvc, sessionSvc, env.Services, rateStore)
	require.NoError(t, err)
	env.JWT = jwtSvc

	return env
}

// Now is the clock seen by the two-factor service.
func (e *Env) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Advance moves the two-factor clock forward.
func (e *Env) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// CreateUser inserts an active user with the given password.
func (e *Env) CreateUser(username, password string, superuser bool) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		IsActive: true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	if superuser {
		require.NoError(e.T, e.DB.Model(user).Update("is_superuser", true).Error)
		user.IsSuperuser = true
	}
	return user
}

// TokenPair mirrors the 2fa-verify response payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ChallengeResult mirrors the 2fa-challenge response payload.
type ChallengeResult struct {
	Challenge  string    `json:"challenge"`
	MustSetup  bool      `json:"must_setup"`
	OTPAuthURL string    `json:"otpauth_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Challenge starts a login and remembers the TOTP secret when one is provisioned.
func (e *Env) Challenge(username, password string) ChallengeResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/token/2fa-challenge", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusAccepted, w.Code, w.Body.String())

	var result ChallengeResult
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &result)
	require.NotEmpty(e.T, result.Challenge)

	if result.OTPAuthURL != "" {
		key, err := otp.NewKeyFromURL(result.OTPAuthURL)
		require.NoError(e.T, err)
		e.mu.Lock()
		e.secrets[username] = key.Secret()
		e.mu.Unlock()
	}
	return result
}

// Code returns the current TOTP code for username.
func (e *Env) Code(username string) string {
	e.T.Helper()
	return e.CodeAt(username, e.Now())
}

// CodeAt returns the TOTP code for username at t.
func (e *Env) CodeAt(username string, t time.Time) string {
	e.T.Helper()

	e.mu.Lock()
	secret, ok := e.secrets[username]
	e.mu.Unlock()
	require.True(e.T, ok, "no TOTP secret captured for %s", username)

	code, err := totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(e.T, err)
	return code
}

// Login runs the challenge and verify steps and returns the issued tokens.
func (e *Env) Login(username, password string) TokenPair {
	e.T.Helper()

	challenge := e.Challenge(username, password)

	w := e.Request(http.MethodPost, "/api/token/2fa-verify", map[string]string{
		"challenge": challenge.Challenge,
		"code":      e.Code(username),
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var pair TokenPair
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &pair)
	require.NotEmpty(e.T, pair.AccessToken)
	require.NotEmpty(e.T, pair.RefreshToken)
	return pair
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router with an optional bearer token.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return e.do(method, path, body, headers)
}

// DeviceRequest executes a request authenticated with a device API key.
func (e *Env) DeviceRequest(method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	e.T.Helper()
	headers := map[string]string{}
	if apiKey != "" {
		headers[middleware.DeviceAPIKeyHeader] = apiKey
	}
	return e.do(method, path, body, headers)
}

func (e *Env) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.T, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, path, &buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// RecordingPublisher captures access events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.AccessEvent
}

func (p *RecordingPublisher) PublishAccess(_ context.Context, event events.AccessEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Published returns a copy of the captured events.
func (p *RecordingPublisher) Published() []events.AccessEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.AccessEvent(nil), p.events...)
}
