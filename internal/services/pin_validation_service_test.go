package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/models"
	apperrors "github.com/charlesng35/lockgate/pkg/errors"
)

type pinFixture struct {
	lockFixture
	svc       *PinValidationService
	validator *auth.DeviceKeyValidator
	publisher *recordingPublisher
	device    *models.Device
}

func setupPinValidation(t *testing.T) pinFixture {
	t.Helper()

	f := setupLockFixture(t)
	recorder, err := NewAccessLogService(f.db, f.checker)
	require.NoError(t, err)
	validator, err := auth.NewDeviceKeyValidator(f.db)
	require.NoError(t, err)
	publisher := &recordingPublisher{}

	svc, err := NewPinValidationService(f.db, recorder, validator, publisher)
	require.NoError(t, err)

	return pinFixture{
		lockFixture: f,
		svc:         svc,
		validator:   validator,
		publisher:   publisher,
		device:      createDevice(t, f.db, f.lock, f.admin, "keypad-1"),
	}
}

func (f pinFixture) deviceContext(t *testing.T, device *models.Device) *auth.DeviceContext {
	t.Helper()
	dc, err := f.validator.Validate(context.Background(), device.APIKey)
	require.NoError(t, err)
	return dc
}

func (f pinFixture) addPin(t *testing.T, code string, creator *models.User, start, end *time.Time) *models.Pin {
	t.Helper()
	pin := &models.Pin{LockID: f.lock.ID, Code: code, IsActive: true}
	if creator != nil {
		pin.CreatedByID = &creator.ID
	}
	if start != nil || end != nil {
		pin.IsTemporary = true
		pin.StartTime = start
		pin.EndTime = end
	}
	require.NoError(t, f.db.Create(pin).Error)
	return pin
}

func TestNewPinValidationServiceRequiresDeps(t *testing.T) {
	_, err := NewPinValidationService(nil, nil, nil, nil)
	require.Error(t, err)

	f := setupLockFixture(t)
	_, err = NewPinValidationService(f.db, nil, nil, nil)
	require.Error(t, err)
}

func TestCheckPermanentPinGranted(t *testing.T) {
	f := setupPinValidation(t)
	f.addPin(t, "1234", f.owner, nil, nil)
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	result, err := f.svc.Check(context.Background(), CheckInput{
		Lock:      f.lock,
		Device:    f.deviceContext(t, f.device),
		Code:      "1234",
		Now:       now,
		ClientIP:  "192.0.2.10",
		UserAgent: "fw/1",
	})
	require.NoError(t, err)
	require.True(t, result.Granted)
	require.NotNil(t, result.Log)
	require.Equal(t, models.AccessResultSuccess, result.Log.Result)
	require.Equal(t, models.AccessTypePIN, result.Log.AccessType)
	require.Equal(t, "Checked by device keypad-1", result.Log.Details)
	require.Equal(t, f.owner.ID, *result.Log.UserID)
	require.Equal(t, f.device.ID, *result.Log.DeviceID)
	require.EqualValues(t, 1, countAccessLogs(t, f.db))

	var device models.Device
	require.NoError(t, f.db.Take(&device, "id = ?", f.device.ID).Error)
	require.NotNil(t, device.LastUsedAt)
	require.True(t, device.LastUsedAt.Equal(now))

	published := f.publisher.published()
	require.Len(t, published, 1)
	require.Equal(t, f.lock.UUID, published[0].LockUUID)
	require.Equal(t, "SUCCESS", published[0].Result)
	require.Equal(t, result.Log.ID, published[0].AccessLog)
}

func TestCheckTemporalBoundaries(t *testing.T) {
	f := setupPinValidation(t)
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	f.addPin(t, "5555", f.owner, &start, &end)
	dc := f.deviceContext(t, f.device)

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before start", start.Add(-time.Second), false},
		{"at start", start, true},
		{"at end", end, true},
		{"after end", end.Add(time.Second), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := countAccessLogs(t, f.db)
			result, err := f.svc.Check(context.Background(), CheckInput{Lock: f.lock, Device: dc, Code: "5555", Now: tc.at})
			require.NoError(t, err)
			require.Equal(t, tc.want, result.Granted)
			require.Equal(t, before+1, countAccessLogs(t, f.db))
		})
	}
}

func TestCheckTemporaryPinWithoutWindowDenied(t *testing.T) {
	f := setupPinValidation(t)
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f.addPin(t, "7777", f.owner, &start, nil)

	result, err := f.svc.Check(context.Background(), CheckInput{
		Lock:   f.lock,
		Device: f.deviceContext(t, f.device),
		Code:   "7777",
		Now:    start.Add(time.Minute),
	})
	require.NoError(t, err)
	require.False(t, result.Granted)
}

func TestCheckUnknownOrInactivePinDenied(t *testing.T) {
	f := setupPinValidation(t)
	pin := f.addPin(t, "1111", f.owner, nil, nil)
	require.NoError(t, f.db.Model(pin).Update("is_active", false).Error)
	dc := f.deviceContext(t, f.device)

	for _, code := range []string{"1111", "9999"} {
		result, err := f.svc.Check(context.Background(), CheckInput{Lock: f.lock, Device: dc, Code: code})
		require.NoError(t, err)
		require.False(t, result.Granted)
		require.Equal(t, models.AccessResultFail, result.Log.Result)
		// no pin creator, so the device owner is attributed
		require.Equal(t, f.admin.ID, *result.Log.UserID)
	}

	require.EqualValues(t, 2, countAccessLogs(t, f.db))
	require.Empty(t, f.publisher.published())
}

func TestCheckAttributionFallsBackToNil(t *testing.T) {
	f := setupPinValidation(t)
	f.addPin(t, "2468", nil, nil, nil)
	require.NoError(t, f.db.Model(f.admin).Update("is_active", false).Error)

	result, err := f.svc.Check(context.Background(), CheckInput{
		Lock:   f.lock,
		Device: f.deviceContext(t, f.device),
		Code:   "2468",
	})
	require.NoError(t, err)
	require.True(t, result.Granted)
	require.Nil(t, result.Log.UserID)
}

func TestCheckDeviceForOtherLockRejected(t *testing.T) {
	f := setupPinValidation(t)
	f.addPin(t, "1234", f.owner, nil, nil)

	locks, err := NewLockService(f.db, f.checker)
	require.NoError(t, err)
	other, err := locks.Create(context.Background(), f.stranger.ID, CreateLockInput{Name: "garage"})
	require.NoError(t, err)
	foreign := createDevice(t, f.db, other, f.stranger, "garage-reader")

	_, err = f.svc.Check(context.Background(), CheckInput{
		Lock:   f.lock,
		Device: f.deviceContext(t, foreign),
		Code:   "1234",
	})
	require.ErrorIs(t, err, ErrDeviceLockMismatch)

	var log models.AccessLog
	require.NoError(t, f.db.Take(&log).Error)
	require.Equal(t, f.lock.ID, log.LockID)
	require.Equal(t, models.AccessResultFail, log.Result)
	require.Equal(t, foreign.ID, *log.DeviceID)
	require.EqualValues(t, 1, countAccessLogs(t, f.db))
}

func TestCheckMissingCodeNotLogged(t *testing.T) {
	f := setupPinValidation(t)

	_, err := f.svc.Check(context.Background(), CheckInput{
		Lock:   f.lock,
		Device: f.deviceContext(t, f.device),
		Code:   "   ",
	})
	require.ErrorIs(t, err, ErrMissingPinCode)
	require.Zero(t, countAccessLogs(t, f.db))
}

func TestCheckRequiresLockAndDevice(t *testing.T) {
	f := setupPinValidation(t)

	_, err := f.svc.Check(context.Background(), CheckInput{Device: f.deviceContext(t, f.device), Code: "1234"})
	require.ErrorIs(t, err, ErrLockNotFound)

	_, err = f.svc.Check(context.Background(), CheckInput{Lock: f.lock, Code: "1234"})
	require.ErrorIs(t, err, apperrors.ErrDeviceUnauthorized)
}

func TestCheckRecorderFailureSurfaces(t *testing.T) {
	f := setupPinValidation(t)
	f.addPin(t, "1234", f.owner, nil, nil)

	svc, err := NewPinValidationService(f.db, failingRecorder{}, f.validator, f.publisher)
	require.NoError(t, err)

	_, err = svc.Check(context.Background(), CheckInput{
		Lock:   f.lock,
		Device: f.deviceContext(t, f.device),
		Code:   "1234",
	})
	require.Error(t, err)
	require.Empty(t, f.publisher.published())
}

func TestCheckPublisherFailureDoesNotChangeDecision(t *testing.T) {
	f := setupPinValidation(t)
	f.addPin(t, "1234", f.owner, nil, nil)
	f.publisher.err = errors.New("broker down")

	result, err := f.svc.Check(context.Background(), CheckInput{
		Lock:   f.lock,
		Device: f.deviceContext(t, f.device),
		Code:   "1234",
	})
	require.NoError(t, err)
	require.True(t, result.Granted)
}
