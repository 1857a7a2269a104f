package app

import (
	"github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/auth/mfa"
)

const defaultRefreshLength = 48

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = defaultRefreshLength
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// TwoFactorOptions converts the two-factor settings into service options.
// Unset values leave the service defaults in place.
func (c AuthConfig) TwoFactorOptions() []mfa.Option {
	opts := []mfa.Option{mfa.WithSkew(c.TwoFactor.Skew)}
	if c.TwoFactor.Issuer != "" {
		opts = append(opts, mfa.WithIssuer(c.TwoFactor.Issuer))
	}
	if c.TwoFactor.ChallengeTTL > 0 {
		opts = append(opts, mfa.WithChallengeTTL(c.TwoFactor.ChallengeTTL))
	}
	if c.TwoFactor.QRCodeSize > 0 {
		opts = append(opts, mfa.WithQRCodeSize(c.TwoFactor.QRCodeSize))
	}
	return opts
}
