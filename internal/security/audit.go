package security

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/app"
	"github.com/charlesng35/lockgate/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a per-status count.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

const (
	minJWTSecretBytes    = 32
	goodJWTSecretBytes   = 48
	maxRefreshTTL        = 30 * 24 * time.Hour
	maxRecommendedSkew   = 1
	minPinAttemptsWindow = time.Second
)

// AuditService evaluates the deployment's security-relevant configuration.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. A nil db or cfg degrades the
// affected checks to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{db: db, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock used in results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkSuperuser(ctx),
		s.checkJWTSecret(),
		s.checkVaultKey(),
		s.checkRefreshTTL(),
		s.checkTOTPSkew(),
		s.checkPinRateLimit(),
		s.checkCORS(),
	}

	summary := map[string]int{string(StatusPass): 0, string(StatusWarn): 0, string(StatusFail): 0}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{CheckedAt: s.now().UTC(), Checks: checks, Summary: summary}
}

func (s *AuditService) checkSuperuser(ctx context.Context) Check {
	const id = "superuser_present"
	if s.db == nil {
		return Check{ID: id, Status: StatusWarn, Message: "Database unavailable; superuser presence not verified."}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_superuser = ? AND is_active = ?", true, true).
		Count(&count).Error; err != nil {
		return Check{ID: id, Status: StatusWarn, Message: fmt.Sprintf("Could not count superusers: %v", err)}
	}

	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "No active superuser exists; locks cannot be provisioned.",
			Remediation: "Promote an operator account to superuser.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Active superuser present.", Details: map[string]any{"count": count}}
}

func (s *AuditService) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	if s.cfg == nil {
		return configMissing(id)
	}

	length := len(s.cfg.Auth.JWT.Secret)
	switch {
	case length < minJWTSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Set LOCKGATE_AUTH_JWT_SECRET to a random value of at least 32 bytes.",
		}
	case length < goodJWTSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes; 48 or more is recommended.", length),
			Remediation: "Lengthen LOCKGATE_AUTH_JWT_SECRET.",
			Details:     map[string]any{"length": length},
		}
	}
	return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("JWT signing secret is %d bytes.", length)}
}

func (s *AuditService) checkVaultKey() Check {
	const id = "vault_encryption_key"
	if s.cfg == nil {
		return configMissing(id)
	}

	if _, err := s.cfg.Vault.VaultKey(); err != nil {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     err.Error(),
			Remediation: "Set LOCKGATE_VAULT_ENCRYPTION_KEY to 32 random bytes (hex or base64).",
		}
	}

	length, _ := app.KeyByteLength(s.cfg.Vault.EncryptionKey)
	if length < 32 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Vault master key is %d bytes; 32 is recommended.", length),
			Remediation: "Rotate to a 32 byte master key.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Vault master key configured."}
}

func (s *AuditService) checkRefreshTTL() Check {
	const id = "session_refresh_ttl"
	if s.cfg == nil {
		return configMissing(id)
	}

	ttl := s.cfg.Auth.Session.RefreshTTL
	switch {
	case ttl <= 0:
		return Check{ID: id, Status: StatusWarn, Message: "Refresh token TTL is not configured; the default applies."}
	case ttl > maxRefreshTTL:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Refresh token TTL (%s) exceeds %s.", ttl, maxRefreshTTL),
			Remediation: "Lower LOCKGATE_AUTH_SESSION_REFRESH_TOKEN_TTL.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("Refresh token TTL is %s.", ttl)}
}

func (s *AuditService) checkTOTPSkew() Check {
	const id = "totp_skew"
	if s.cfg == nil {
		return configMissing(id)
	}

	skew := s.cfg.Auth.TwoFactor.Skew
	if skew > maxRecommendedSkew {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("TOTP accepts %d steps of clock drift; each extra step widens the guessing window.", skew),
			Remediation: "Set LOCKGATE_AUTH_TWO_FACTOR_SKEW to 1.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("TOTP skew is %d.", skew)}
}

func (s *AuditService) checkPinRateLimit() Check {
	const id = "validate_pin_rate_limit"
	if s.cfg == nil {
		return configMissing(id)
	}

	rule := s.cfg.RateLimit.ValidatePin
	if rule.Requests <= 0 || rule.Window < minPinAttemptsWindow {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "PIN validation is not rate limited; codes can be brute forced.",
			Remediation: "Configure rate_limit.validate_pin with a positive request budget and window.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("PIN validation limited to %d requests per %s.", rule.Requests, rule.Window),
	}
}

func (s *AuditService) checkCORS() Check {
	const id = "cors_origins"
	if s.cfg == nil {
		return configMissing(id)
	}

	if slices.Contains(s.cfg.Server.CORSOrigins, "*") {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "CORS allows any origin.",
			Remediation: "List the dashboard origins explicitly in server.cors_origins.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "CORS origins restricted."}
}

func configMissing(id string) Check {
	return Check{ID: id, Status: StatusWarn, Message: "Configuration not loaded."}
}
