package handlers

import (
	"errors"

	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/auth/mfa"
	apperrors "github.com/charlesng35/lockgate/pkg/errors"
)

// twoFactorError translates mfa sentinels into API errors. Unknown errors become 500s.
func twoFactorError(err error) error {
	switch {
	case errors.Is(err, mfa.ErrInvalidCredentials), errors.Is(err, mfa.ErrAccountInactive):
		return apperrors.ErrInvalidCredentials
	case errors.Is(err, mfa.ErrChallengeExpired):
		return apperrors.ErrChallengeExpired
	case errors.Is(err, mfa.ErrChallengeInvalid):
		return apperrors.ErrChallengeInvalid
	case errors.Is(err, mfa.ErrTwoFactorNotConfigured):
		return apperrors.ErrMFANotConfigured
	case errors.Is(err, mfa.ErrInvalidCode):
		return apperrors.ErrMFAInvalid
	default:
		return apperrors.ErrInternalServer.WithInternal(err)
	}
}

// verifyLoginError maps challenge verification failures. Every rejection is a
// 400; an account disabled mid-login reads as an invalid challenge.
func verifyLoginError(err error) error {
	if errors.Is(err, mfa.ErrAccountInactive) || errors.Is(err, mfa.ErrInvalidCredentials) {
		return apperrors.ErrChallengeInvalid
	}
	return twoFactorError(err)
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, iauth.ErrSessionNotFound),
		errors.Is(err, iauth.ErrSessionRevoked),
		errors.Is(err, iauth.ErrSessionExpired),
		errors.Is(err, iauth.ErrSessionInvalidToken):
		return apperrors.ErrUnauthorized
	default:
		return apperrors.ErrInternalServer.WithInternal(err)
	}
}
