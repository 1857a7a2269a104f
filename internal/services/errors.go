package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/lockgate/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrLockNotFound indicates no lock matches the identifier.
	ErrLockNotFound = apperrors.New("LOCK_NOT_FOUND", "Lock not found", http.StatusNotFound)
	// ErrPinNotFound indicates no pin matches the identifier.
	ErrPinNotFound = apperrors.New("PIN_NOT_FOUND", "Pin not found", http.StatusNotFound)
	// ErrDeviceNotFound indicates no device matches the identifier.
	ErrDeviceNotFound = apperrors.New("DEVICE_NOT_FOUND", "Device not found", http.StatusNotFound)
	// ErrAccessLogNotFound indicates no access log matches the identifier.
	ErrAccessLogNotFound = apperrors.New("ACCESS_LOG_NOT_FOUND", "Access log not found", http.StatusNotFound)
	// ErrRoleBindingNotFound indicates no role binding matches the identifier.
	ErrRoleBindingNotFound = apperrors.New("ROLE_BINDING_NOT_FOUND", "Role binding not found", http.StatusNotFound)
	// ErrRoleNotFound indicates the named role is not part of the catalogue.
	ErrRoleNotFound = apperrors.New("ROLE_NOT_FOUND", "Role not found", http.StatusBadRequest)
	// ErrNetworkConfigNotFound indicates the lock has no network configuration yet.
	ErrNetworkConfigNotFound = apperrors.New("NETWORK_CONFIG_NOT_FOUND", "Network configuration not found", http.StatusNotFound)

	// ErrLockAlreadyClaimed is returned when claiming a lock that has an owner.
	ErrLockAlreadyClaimed = apperrors.New("LOCK_ALREADY_CLAIMED", "Lock already has an owner", http.StatusBadRequest)
	// ErrDuplicatePin is returned when the code already exists on the lock.
	ErrDuplicatePin = apperrors.New("VALIDATION_ERROR", "A pin with this code already exists for the lock", http.StatusBadRequest)
	// ErrDuplicateRoleBinding is returned when the (user, role, lock) triple exists.
	ErrDuplicateRoleBinding = apperrors.New("VALIDATION_ERROR", "User already holds this role on the lock", http.StatusBadRequest)
	// ErrInvalidPinWindow is returned for temporary pins without a valid start < end window.
	ErrInvalidPinWindow = apperrors.New("VALIDATION_ERROR", "Temporary pins require start_time and end_time with start_time before end_time", http.StatusBadRequest)
	// ErrInvalidPinCode is returned for codes that are not 4 to 10 digits.
	ErrInvalidPinCode = apperrors.New("VALIDATION_ERROR", "Pin code must be 4 to 10 digits", http.StatusBadRequest)
	// ErrMissingPinCode is returned when validate_pin is called without a code.
	ErrMissingPinCode = apperrors.New("VALIDATION_ERROR", "code is required", http.StatusBadRequest)
	// ErrDuplicateDeviceUID is returned when the device uid is already registered.
	ErrDuplicateDeviceUID = apperrors.New("VALIDATION_ERROR", "A device with this uid already exists", http.StatusBadRequest)
	// ErrInvalidDeviceType is returned for device types outside MOBILE, NFC and RFID.
	ErrInvalidDeviceType = apperrors.New("VALIDATION_ERROR", "device_type must be one of MOBILE, NFC, RFID", http.StatusBadRequest)
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = apperrors.New("VALIDATION_ERROR", "Username already exists", http.StatusBadRequest)

	// ErrDeviceLockMismatch is returned when a device checks a lock it is not registered for.
	ErrDeviceLockMismatch = apperrors.New("DEVICE_UNAUTHORIZED", "Invalid API key or device not allowed for this lock", http.StatusForbidden)
	// ErrOwnerBindingImmutable protects the lock owner's binding.
	ErrOwnerBindingImmutable = apperrors.New("OWNER_BINDING_IMMUTABLE", "The owner binding can only be changed by a superuser", http.StatusForbidden)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate")
}
