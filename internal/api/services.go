package api

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/app"
	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/auth/mfa"
	"github.com/charlesng35/lockgate/internal/events"
	"github.com/charlesng35/lockgate/internal/permissions"
	"github.com/charlesng35/lockgate/internal/monitoring"
	"github.com/charlesng35/lockgate/internal/monitoring/checks"
	"github.com/charlesng35/lockgate/internal/realtime"
	"github.com/charlesng35/lockgate/internal/security"
	"github.com/charlesng35/lockgate/internal/services"
	"github.com/charlesng35/lockgate/internal/vault"
)

// Services bundles the domain services behind the HTTP surface so the
// server and background jobs share one instance of each.
type Services struct {
	DB           *gorm.DB
	Checker      *permissions.Checker
	DeviceKeys   *iauth.DeviceKeyValidator
	TwoFactor    *mfa.TwoFactorService
	Users        *services.UserService
	Locks        *services.LockService
	Pins         *services.PinService
	Devices      *services.DeviceService
	RoleBindings *services.RoleBindingService
	Network      *services.NetworkConfigService
	AccessLogs   *services.AccessLogService
	Validation   *services.PinValidationService
	Health       *monitoring.HealthManager
	Audit        *security.AuditService
	Realtime     *realtime.Hub
}

// NewServices wires every service against db. Access events always reach the
// realtime hub and additionally publisher when it is non-nil.
func NewServices(db *gorm.DB, cfg *app.Config, publisher events.Publisher, twoFactorOpts ...mfa.Option) (*Services, error) {
	if db == nil {
		return nil, errors.New("database handle must be provided")
	}
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}

	masterKey, err := cfg.Vault.VaultKey()
	if err != nil {
		return nil, fmt.Errorf("vault key: %w", err)
	}
	cipher, err := vault.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}
	vaultKey := cipher.Key()

	s := &Services{
		DB:       db,
		Health:   monitoring.NewHealthManager(),
		Audit:    security.NewAuditService(db, cfg),
		Realtime: realtime.NewHub(),
	}
	s.Health.RegisterReadiness(checks.Database(db, 0))

	if s.Checker, err = permissions.NewChecker(db); err != nil {
		return nil, err
	}
	if s.DeviceKeys, err = iauth.NewDeviceKeyValidator(db); err != nil {
		return nil, err
	}

	opts := append(cfg.Auth.TwoFactorOptions(), twoFactorOpts...)
	if s.TwoFactor, err = mfa.NewTwoFactorService(db, vaultKey, opts...); err != nil {
		return nil, err
	}
	if s.Users, err = services.NewUserService(db); err != nil {
		return nil, err
	}
	if s.Locks, err = services.NewLockService(db, s.Checker); err != nil {
		return nil, err
	}
	if s.Pins, err = services.NewPinService(db, s.Checker); err != nil {
		return nil, err
	}
	if s.Devices, err = services.NewDeviceService(db, s.Checker); err != nil {
		return nil, err
	}
	if s.RoleBindings, err = services.NewRoleBindingService(db, s.Checker); err != nil {
		return nil, err
	}
	if s.Network, err = services.NewNetworkConfigService(db, s.Checker, vaultKey); err != nil {
		return nil, err
	}
	if s.AccessLogs, err = services.NewAccessLogService(db, s.Checker); err != nil {
		return nil, err
	}
	if s.Validation, err = services.NewPinValidationService(db, s.AccessLogs, s.DeviceKeys, events.NewFanout(publisher, s.Realtime)); err != nil {
		return nil, err
	}

	return s, nil
}
