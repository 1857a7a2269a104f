package mfa

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/pkg/crypto"
	"github.com/charlesng35/lockgate/pkg/logger"
	"github.com/charlesng35/lockgate/pkg/metrics"
)

const (
	defaultIssuer       = "LockGate"
	defaultQRCodeSize   = 256
	defaultChallengeTTL = 5 * time.Minute
	defaultSkew         = 1

	totpPeriod       = 30
	challengeTokenLn = 32
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("mfa: invalid credentials")
	// ErrAccountInactive is returned when the password matched a disabled account.
	ErrAccountInactive = errors.New("mfa: account inactive")
	// ErrChallengeInvalid is returned for unknown or already used challenges.
	ErrChallengeInvalid = errors.New("mfa: challenge invalid or already used")
	// ErrChallengeExpired is returned once the challenge lifetime has elapsed.
	ErrChallengeExpired = errors.New("mfa: challenge expired")
	// ErrTwoFactorNotConfigured is returned when no secret exists for the user.
	ErrTwoFactorNotConfigured = errors.New("mfa: two-factor not configured")
	// ErrInvalidCode is returned when the submitted TOTP code does not verify.
	ErrInvalidCode = errors.New("mfa: invalid code")
)

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Option allows customising the two-factor service.
type Option func(*TwoFactorService)

// WithIssuer overrides the default issuer string encoded in provisioning URIs.
func WithIssuer(issuer string) Option {
	return func(s *TwoFactorService) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = issuer
		}
	}
}

// WithQRCodeSize controls the pixel size of generated QR codes.
func WithQRCodeSize(size int) Option {
	return func(s *TwoFactorService) {
		if size > 0 {
			s.qrCodeSize = size
		}
	}
}

// WithChallengeTTL sets how long a login challenge stays usable.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *TwoFactorService) {
		if ttl > 0 {
			s.challengeTTL = ttl
		}
	}
}

// WithSkew sets how many adjacent time steps are accepted on either side.
func WithSkew(steps uint) Option {
	return func(s *TwoFactorService) {
		s.skew = steps
	}
}

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *TwoFactorService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Provisioning is what a client needs to enrol an authenticator app.
type Provisioning struct {
	URI     string
	QRCode  []byte
	Enabled bool
}

// LoginChallenge is returned after a successful password check.
type LoginChallenge struct {
	Token           string
	UserID          string
	ExpiresAt       time.Time
	MustSetup       bool
	ProvisioningURI string
}

// TwoFactorService manages TOTP secrets and the password-then-code login flow.
// Every successful password check produces a challenge; tokens are only
// issued by the caller after VerifyLogin succeeds.
type TwoFactorService struct {
	db            *gorm.DB
	encryptionKey []byte

	issuer       string
	qrCodeSize   int
	challengeTTL time.Duration
	skew         uint
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewTwoFactorService constructs the service backed by the provided database.
func NewTwoFactorService(db *gorm.DB, encryptionKey []byte, opts ...Option) (*TwoFactorService, error) {
	if db == nil {
		return nil, errors.New("mfa: db is required")
	}
	if len(encryptionKey) == 0 {
		return nil, errors.New("mfa: encryption key is required")
	}

	service := &TwoFactorService{
		db:            db,
		encryptionKey: encryptionKey,
		issuer:        defaultIssuer,
		qrCodeSize:    defaultQRCodeSize,
		challengeTTL:  defaultChallengeTTL,
		skew:          defaultSkew,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// ChallengeTTL reports the configured challenge lifetime.
func (s *TwoFactorService) ChallengeTTL() time.Duration {
	return s.challengeTTL
}

// Setup returns provisioning data for the user's secret, creating it on first
// call. Repeated calls return the same secret.
func (s *TwoFactorService) Setup(ctx context.Context, userID string) (*Provisioning, error) {
	ctx = ensureContext(ctx)

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	cfg, secret, err := s.ensureConfig(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	key, err := s.keyFor(user.Username, secret)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(key.String(), qrcode.Medium, s.qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("mfa: render qr code: %w", err)
	}

	return &Provisioning{URI: key.String(), QRCode: png, Enabled: cfg.Enabled}, nil
}

// Confirm enables two-factor after verifying a code against the stored secret.
func (s *TwoFactorService) Confirm(ctx context.Context, userID, code string) error {
	return s.setEnabled(ctx, userID, code, true)
}

// Disable turns two-factor off after verifying a code. The secret is kept.
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string) error {
	return s.setEnabled(ctx, userID, code, false)
}

// Enabled reports whether the user has a confirmed second factor.
func (s *TwoFactorService) Enabled(ctx context.Context, userID string) (bool, error) {
	ctx = ensureContext(ctx)

	cfg, err := s.loadConfig(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	return cfg != nil && cfg.Enabled, nil
}

func (s *TwoFactorService) setEnabled(ctx context.Context, userID, code string, enabled bool) error {
	ctx = ensureContext(ctx)

	cfg, err := s.loadConfig(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if cfg == nil || cfg.Secret == "" {
		return ErrTwoFactorNotConfigured
	}

	now := s.now()
	ok, err := s.verifyCode(cfg, code, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	updates := map[string]any{"enabled": enabled}
	if enabled {
		updates["confirmed_at"] = now
	}
	if err := s.db.WithContext(ctx).Model(&models.TwoFactorConfig{}).
		Where("id = ?", cfg.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("mfa: update config: %w", err)
	}

	logger.WithModule("mfa").Info("two-factor state changed",
		zap.String("user_id", userID),
		zap.Bool("enabled", enabled),
	)
	return nil
}

// BeginLogin checks the primary credentials and opens a login challenge.
// The returned challenge never carries tokens.
func (s *TwoFactorService) BeginLogin(ctx context.Context, username, password string) (*LoginChallenge, error) {
	ctx = ensureContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// keep the response time close to the wrong-password path
		crypto.VerifyPassword(s.dummyPasswordHash(), password)
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("mfa: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("inactive").Inc()
		return nil, ErrAccountInactive
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()

	cfg, secret, err := s.ensureConfig(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := crypto.GenerateToken(challengeTokenLn)
	if err != nil {
		return nil, fmt.Errorf("mfa: generate challenge token: %w", err)
	}

	now := s.now()
	challenge := &models.TwoFactorChallenge{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(challenge).Error; err != nil {
		return nil, fmt.Errorf("mfa: create challenge: %w", err)
	}

	result := &LoginChallenge{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: challenge.ExpiresAt(s.challengeTTL),
		MustSetup: !cfg.Enabled,
	}
	if result.MustSetup {
		key, err := s.keyFor(user.Username, secret)
		if err != nil {
			return nil, err
		}
		result.ProvisioningURI = key.String()
	}

	return result, nil
}

// VerifyLogin consumes a challenge with a TOTP code and returns the user.
// Exactly one of any number of concurrent calls for the same challenge succeeds.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, token, code string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.verifyLogin(ctx, strings.TrimSpace(token), code)
	metrics.TwoFactorVerifications.WithLabelValues(verificationResult(err)).Inc()
	return user, err
}

func (s *TwoFactorService) verifyLogin(ctx context.Context, token, code string) (*models.User, error) {
	if token == "" {
		return nil, ErrChallengeInvalid
	}

	var challenge models.TwoFactorChallenge
	err := s.db.WithContext(ctx).
		Where("token = ? AND used = ?", token, false).
		Take(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChallengeInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("mfa: load challenge: %w", err)
	}

	now := s.now()
	if challenge.ExpiredAt(now, s.challengeTTL) {
		return nil, ErrChallengeExpired
	}

	cfg, err := s.loadConfig(ctx, s.db, challenge.UserID)
	if err != nil {
		return nil, err
	}
	if cfg == nil || cfg.Secret == "" {
		return nil, ErrTwoFactorNotConfigured
	}

	ok, err := s.verifyCode(cfg, code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TwoFactorChallenge{}).
			Where("id = ? AND used = ?", challenge.ID, false).
			Updates(map[string]any{"used": true, "used_at": now})
		if res.Error != nil {
			return fmt.Errorf("mfa: consume challenge: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrChallengeInvalid
		}

		if !cfg.Enabled {
			if err := tx.Model(&models.TwoFactorConfig{}).
				Where("id = ?", cfg.ID).
				Updates(map[string]any{"enabled": true, "confirmed_at": now}).Error; err != nil {
				return fmt.Errorf("mfa: enable config: %w", err)
			}
		}

		if err := tx.Take(&user, "id = ?", challenge.UserID).Error; err != nil {
			return fmt.Errorf("mfa: load user: %w", err)
		}
		if !user.IsActive {
			return ErrAccountInactive
		}

		return tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("last_login_at", now).Error
	})
	if err != nil {
		return nil, err
	}

	user.LastLoginAt = &now
	if !cfg.Enabled {
		logger.WithModule("mfa").Info("two-factor enabled on first login", zap.String("user_id", user.ID))
	}
	return &user, nil
}

// PurgeChallenges deletes challenges that are used or past their lifetime.
func (s *TwoFactorService) PurgeChallenges(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	cutoff := s.now().Add(-s.challengeTTL)
	res := s.db.WithContext(ctx).
		Where("used = ? OR created_at < ?", true, cutoff).
		Delete(&models.TwoFactorChallenge{})
	if res.Error != nil {
		return 0, fmt.Errorf("mfa: purge challenges: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ensureConfig returns the user's config and decrypted secret, generating a
// secret when none exists yet.
func (s *TwoFactorService) ensureConfig(ctx context.Context, userID string) (*models.TwoFactorConfig, string, error) {
	cfg, err := s.loadConfig(ctx, s.db, userID)
	if err != nil {
		return nil, "", err
	}
	if cfg != nil && cfg.Secret != "" {
		secret, err := s.decryptSecret(cfg)
		return cfg, secret, err
	}

	raw, err := totp.Generate(totp.GenerateOpts{Issuer: s.issuer, AccountName: userID})
	if err != nil {
		return nil, "", fmt.Errorf("mfa: generate secret: %w", err)
	}
	encrypted, err := crypto.Encrypt([]byte(raw.Secret()), s.encryptionKey)
	if err != nil {
		return nil, "", fmt.Errorf("mfa: encrypt secret: %w", err)
	}

	if cfg != nil {
		// only fill a blank secret, a concurrent writer may have set one
		res := s.db.WithContext(ctx).Model(&models.TwoFactorConfig{}).
			Where("id = ? AND (secret = '' OR secret IS NULL)", cfg.ID).
			Update("secret", encrypted)
		if res.Error != nil {
			return nil, "", fmt.Errorf("mfa: store secret: %w", res.Error)
		}
	} else {
		created := &models.TwoFactorConfig{UserID: userID, Secret: encrypted}
		if err := s.db.WithContext(ctx).Create(created).Error; err != nil {
			// lost a creation race on user_id; fall through to the stored row
			if existing, loadErr := s.loadConfig(ctx, s.db, userID); loadErr != nil || existing == nil {
				return nil, "", fmt.Errorf("mfa: create config: %w", err)
			}
		}
	}

	cfg, err = s.loadConfig(ctx, s.db, userID)
	if err != nil {
		return nil, "", err
	}
	if cfg == nil || cfg.Secret == "" {
		return nil, "", ErrTwoFactorNotConfigured
	}
	secret, err := s.decryptSecret(cfg)
	return cfg, secret, err
}

func (s *TwoFactorService) loadConfig(ctx context.Context, db *gorm.DB, userID string) (*models.TwoFactorConfig, error) {
	var cfg models.TwoFactorConfig
	err := db.WithContext(ctx).Where("user_id = ?", userID).Take(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mfa: load config: %w", err)
	}
	return &cfg, nil
}

func (s *TwoFactorService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("mfa: user id is required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("mfa: load user: %w", err)
	}
	return &user, nil
}

func (s *TwoFactorService) decryptSecret(cfg *models.TwoFactorConfig) (string, error) {
	raw, err := crypto.Decrypt(cfg.Secret, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("mfa: decrypt secret: %w", err)
	}
	return string(raw), nil
}

// keyFor rebuilds the provisioning key for an existing base32 secret.
func (s *TwoFactorService) keyFor(account, secret string) (*otp.Key, error) {
	raw, err := b32NoPadding.DecodeString(strings.TrimRight(strings.ToUpper(secret), "="))
	if err != nil {
		return nil, fmt.Errorf("mfa: decode secret: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      raw,
	})
	if err != nil {
		return nil, fmt.Errorf("mfa: build key: %w", err)
	}
	return key, nil
}

func (s *TwoFactorService) verifyCode(cfg *models.TwoFactorConfig, code string, now time.Time) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}

	secret, err := s.decryptSecret(cfg)
	if err != nil {
		return false, err
	}

	valid, err := totp.ValidateCustom(code, secret, now.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      s.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// malformed input (wrong length, non-digits) is simply a wrong code
		return false, nil
	}
	return valid, nil
}

func (s *TwoFactorService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = crypto.HashPassword("lockgate-timing-equaliser")
	})
	return s.dummyHash
}

func verificationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrChallengeExpired):
		return "expired"
	case errors.Is(err, ErrChallengeInvalid):
		return "invalid_challenge"
	case errors.Is(err, ErrTwoFactorNotConfigured):
		return "not_configured"
	default:
		return "error"
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
