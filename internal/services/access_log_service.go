package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/internal/permissions"
)

// AccessEntry captures a single access attempt to persist.
type AccessEntry struct {
	LockID     string
	Actor      auth.Actor
	DeviceID   *string
	AccessType models.AccessType
	Result     models.AccessResult
	Details    string
	ClientIP   string
	UserAgent  string
	Timestamp  time.Time
}

// AccessRecorder appends access logs. Implementations must not drop entries silently.
type AccessRecorder interface {
	Record(ctx context.Context, entry AccessEntry) (*models.AccessLog, error)
}

// AccessLogService persists and retrieves access log entries.
type AccessLogService struct {
	db    *gorm.DB
	authz Authorizer
	now   func() time.Time
}

// NewAccessLogService constructs an AccessLogService using the provided database handle.
func NewAccessLogService(db *gorm.DB, authz Authorizer) (*AccessLogService, error) {
	if db == nil {
		return nil, errors.New("access log service: db is required")
	}
	if authz == nil {
		return nil, errors.New("access log service: authorizer is required")
	}
	return &AccessLogService{db: db, authz: authz, now: time.Now}, nil
}

// Record stores an access entry. Only human actors are attributed.
func (s *AccessLogService) Record(ctx context.Context, entry AccessEntry) (*models.AccessLog, error) {
	ctx = ensureContext(ctx)

	lockID := strings.TrimSpace(entry.LockID)
	if lockID == "" {
		return nil, errors.New("access log service: lock id is required")
	}
	if entry.AccessType == "" {
		return nil, errors.New("access log service: access type is required")
	}
	if entry.Result != models.AccessResultSuccess && entry.Result != models.AccessResultFail {
		return nil, fmt.Errorf("access log service: invalid result %q", entry.Result)
	}

	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}

	log := models.AccessLog{
		LockID:     lockID,
		DeviceID:   trimmedPtr(entry.DeviceID),
		AccessType: entry.AccessType,
		Result:     entry.Result,
		Timestamp:  timestamp.UTC(),
		Details:    strings.TrimSpace(entry.Details),
	}
	if userID, ok := entry.Actor.UserID(); ok {
		log.UserID = &userID
	}

	meta := map[string]string{}
	if ip := strings.TrimSpace(entry.ClientIP); ip != "" {
		meta["client_ip"] = ip
	}
	if ua := strings.TrimSpace(entry.UserAgent); ua != "" {
		meta["user_agent"] = ua
	}
	if len(meta) > 0 {
		encoded, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("access log service: marshal context: %w", err)
		}
		log.Context = datatypes.JSON(encoded)
	}

	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		return nil, fmt.Errorf("access log service: create log: %w", err)
	}
	return &log, nil
}

// Get returns a single access log when the caller may read its lock.
func (s *AccessLogService) Get(ctx context.Context, userID, id string) (*models.AccessLog, error) {
	ctx = ensureContext(ctx)

	var log models.AccessLog
	err := s.db.WithContext(ctx).Take(&log, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccessLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("access log service: get log: %w", err)
	}

	lock, err := loadLockByID(ctx, s.db, log.LockID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authz, userID, permissions.Scoped(lock, permissions.KindAccessLog), permissions.ActionRead); err != nil {
		return nil, err
	}
	return &log, nil
}

// CleanupOlderThan removes access logs older than the provided retention period in days.
// A non-positive period keeps every log.
func (s *AccessLogService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	result := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.AccessLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("access log service: cleanup logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
