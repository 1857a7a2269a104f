package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/events"
	"github.com/charlesng35/lockgate/internal/models"
	apperrors "github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/logger"
	"github.com/charlesng35/lockgate/pkg/metrics"
)

const (
	detailDeviceMismatch = "device not registered for lock"
	detailCheckedBy      = "Checked by device %s"
)

// DeviceToucher records successful device use.
type DeviceToucher interface {
	TouchLastUsed(ctx context.Context, deviceID string, now time.Time) error
}

// CheckInput describes one PIN validation request from a device.
type CheckInput struct {
	Lock      *models.Lock
	Device    *auth.DeviceContext
	Code      string
	Now       time.Time
	ClientIP  string
	UserAgent string
}

// CheckResult is the recorded outcome of a PIN validation.
type CheckResult struct {
	Granted bool
	Log     *models.AccessLog
}

// PinValidationService decides whether a code opens a lock and records every decision.
type PinValidationService struct {
	db        *gorm.DB
	recorder  AccessRecorder
	devices   DeviceToucher
	publisher events.Publisher
	now       func() time.Time
	log       *zap.Logger
}

// NewPinValidationService wires the validation state machine.
func NewPinValidationService(db *gorm.DB, recorder AccessRecorder, devices DeviceToucher, publisher events.Publisher) (*PinValidationService, error) {
	if db == nil {
		return nil, errors.New("pin validation: db is required")
	}
	if recorder == nil {
		return nil, errors.New("pin validation: access recorder is required")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &PinValidationService{
		db:        db,
		recorder:  recorder,
		devices:   devices,
		publisher: publisher,
		now:       time.Now,
		log:       logger.WithModule("pin_validation"),
	}, nil
}

// Check validates code against the lock on behalf of an authenticated device.
// Exactly one access log is written for every request that reaches the pin lookup
// or fails the device-lock check.
func (s *PinValidationService) Check(ctx context.Context, input CheckInput) (CheckResult, error) {
	ctx = ensureContext(ctx)

	if input.Lock == nil {
		return CheckResult{}, ErrLockNotFound
	}
	if input.Device == nil {
		return CheckResult{}, apperrors.ErrDeviceUnauthorized
	}

	now := input.Now
	if now.IsZero() {
		now = s.now()
	}

	deviceID := input.Device.Device.ID
	entry := AccessEntry{
		LockID:     input.Lock.ID,
		DeviceID:   &deviceID,
		AccessType: models.AccessTypePIN,
		Result:     models.AccessResultFail,
		ClientIP:   input.ClientIP,
		UserAgent:  input.UserAgent,
		Timestamp:  now,
	}

	if !input.Device.BelongsTo(input.Lock.ID) {
		entry.Actor = input.Device.Owner
		entry.Details = detailDeviceMismatch
		if _, err := s.recorder.Record(ctx, entry); err != nil {
			return CheckResult{}, fmt.Errorf("pin validation: record mismatch: %w", err)
		}
		metrics.PinValidations.WithLabelValues("device_mismatch").Inc()
		s.log.Info("device rejected for lock",
			zap.String("lock_id", input.Lock.ID),
			zap.String("device_id", deviceID),
		)
		return CheckResult{}, ErrDeviceLockMismatch
	}

	code := strings.TrimSpace(input.Code)
	if code == "" {
		return CheckResult{}, ErrMissingPinCode
	}

	pin, err := s.activePin(ctx, input.Lock.ID, code)
	if err != nil {
		return CheckResult{}, err
	}

	granted := pin.ValidAt(now)

	creator := auth.UnknownActor()
	if pin != nil && pin.CreatedBy != nil {
		creator = auth.HumanActor(pin.CreatedBy.ID)
	}
	entry.Actor = auth.FirstHuman(creator, input.Device.Owner)
	entry.Details = fmt.Sprintf(detailCheckedBy, input.Device.Device.UID)
	if granted {
		entry.Result = models.AccessResultSuccess
	}

	record, err := s.recorder.Record(ctx, entry)
	if err != nil {
		s.log.Warn("access log write failed", zap.String("lock_id", input.Lock.ID), zap.Error(err))
		return CheckResult{}, fmt.Errorf("pin validation: record decision: %w", err)
	}

	if !granted {
		metrics.PinValidations.WithLabelValues("denied").Inc()
		s.log.Info("pin denied", zap.String("lock_id", input.Lock.ID), zap.String("device_id", deviceID))
		return CheckResult{Granted: false, Log: record}, nil
	}

	metrics.PinValidations.WithLabelValues("granted").Inc()
	s.log.Info("pin granted", zap.String("lock_id", input.Lock.ID), zap.String("device_id", deviceID))

	if s.devices != nil {
		if err := s.devices.TouchLastUsed(ctx, deviceID, now); err != nil {
			s.log.Warn("update device last use failed", zap.String("device_id", deviceID), zap.Error(err))
		}
	}
	s.publish(ctx, input.Lock, record)

	return CheckResult{Granted: true, Log: record}, nil
}

// activePin returns nil without error when no active pin matches.
func (s *PinValidationService) activePin(ctx context.Context, lockID, code string) (*models.Pin, error) {
	var pin models.Pin
	err := s.db.WithContext(ctx).
		Preload("CreatedBy").
		Where("lock_id = ? AND code = ? AND is_active = ?", lockID, code, true).
		Take(&pin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pin validation: lookup pin: %w", err)
	}
	return &pin, nil
}

func (s *PinValidationService) publish(ctx context.Context, lock *models.Lock, record *models.AccessLog) {
	event := events.AccessEvent{
		LockUUID:   lock.UUID,
		LockID:     lock.ID,
		AccessType: string(record.AccessType),
		Result:     string(record.Result),
		AccessLog:  record.ID,
		Timestamp:  record.Timestamp,
	}
	if record.DeviceID != nil {
		event.DeviceID = *record.DeviceID
	}
	if record.UserID != nil {
		event.UserID = *record.UserID
	}
	if err := s.publisher.PublishAccess(ctx, event); err != nil {
		s.log.Warn("publish access event failed", zap.String("lock_uuid", lock.UUID), zap.Error(err))
	}
}
