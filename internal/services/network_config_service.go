package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/internal/permissions"
	"github.com/charlesng35/lockgate/pkg/crypto"
	apperrors "github.com/charlesng35/lockgate/pkg/errors"
)

// NetworkConfigInput carries the Wi-Fi and Bluetooth settings for a lock.
type NetworkConfigInput struct {
	SSID          string
	Password      string
	BluetoothName string
}

// NetworkConfigView is the decrypted configuration returned to authorized callers.
type NetworkConfigView struct {
	LockUUID      string `json:"lock_uuid"`
	SSID          string `json:"ssid"`
	Password      string `json:"password"`
	BluetoothName string `json:"bluetooth_name"`
}

// NetworkConfigService stores one network configuration per lock with the
// password encrypted at rest.
type NetworkConfigService struct {
	db    *gorm.DB
	authz Authorizer
	key   []byte
}

// NewNetworkConfigService constructs a NetworkConfigService. encryptionKey must be 16, 24 or 32 bytes.
func NewNetworkConfigService(db *gorm.DB, authz Authorizer, encryptionKey []byte) (*NetworkConfigService, error) {
	if db == nil {
		return nil, errors.New("network config service: db is required")
	}
	if authz == nil {
		return nil, errors.New("network config service: authorizer is required")
	}
	switch len(encryptionKey) {
	case 16, 24, 32:
	default:
		return nil, errors.New("network config service: encryption key must be 16, 24 or 32 bytes")
	}
	return &NetworkConfigService{db: db, authz: authz, key: append([]byte(nil), encryptionKey...)}, nil
}

// Upsert creates or replaces the lock's configuration.
func (s *NetworkConfigService) Upsert(ctx context.Context, userID, lockUUID string, input NetworkConfigInput) (*NetworkConfigView, error) {
	ctx = ensureContext(ctx)

	lock, err := loadLockByUUID(ctx, s.db, lockUUID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, userID, permissions.Scoped(lock, permissions.KindNetworkConfig), permissions.ActionWrite); err != nil {
		return nil, err
	}

	ssid := strings.TrimSpace(input.SSID)
	if ssid == "" {
		return nil, apperrors.NewBadRequest("ssid is required")
	}
	if input.Password == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	sealed, err := crypto.Encrypt([]byte(input.Password), s.key)
	if err != nil {
		return nil, fmt.Errorf("network config service: encrypt password: %w", err)
	}

	cfg := models.NetworkConfig{
		LockID:        lock.ID,
		SSID:          ssid,
		Password:      sealed,
		BluetoothName: strings.TrimSpace(input.BluetoothName),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lock_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ssid", "password", "bluetooth_name", "updated_at"}),
	}).Create(&cfg).Error
	if err != nil {
		return nil, fmt.Errorf("network config service: save config: %w", err)
	}

	return &NetworkConfigView{
		LockUUID:      lock.UUID,
		SSID:          cfg.SSID,
		Password:      input.Password,
		BluetoothName: cfg.BluetoothName,
	}, nil
}

// Get returns the decrypted configuration when the caller may read the lock.
func (s *NetworkConfigService) Get(ctx context.Context, userID, lockUUID string) (*NetworkConfigView, error) {
	ctx = ensureContext(ctx)

	lock, err := loadLockByUUID(ctx, s.db, lockUUID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, userID, permissions.Scoped(lock, permissions.KindNetworkConfig), permissions.ActionRead); err != nil {
		return nil, err
	}

	var cfg models.NetworkConfig
	err = s.db.WithContext(ctx).Take(&cfg, "lock_id = ?", lock.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNetworkConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("network config service: load config: %w", err)
	}

	password, err := crypto.Decrypt(cfg.Password, s.key)
	if err != nil {
		return nil, fmt.Errorf("network config service: decrypt password: %w", err)
	}

	return &NetworkConfigView{
		LockUUID:      lock.UUID,
		SSID:          cfg.SSID,
		Password:      string(password),
		BluetoothName: cfg.BluetoothName,
	}, nil
}
