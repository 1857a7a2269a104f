package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxDeviceKey    = "deviceContext"
)

// DeviceAPIKeyHeader carries the device credential.
const DeviceAPIKeyHeader = "X-API-KEY"

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		c.Next()
	}
}

// DeviceAuth authenticates unattended devices by API key. Missing, unknown
// and inactive keys are all rejected with the same 403.
func DeviceAuth(validator *iauth.DeviceKeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(DeviceAPIKeyHeader))
		if key == "" {
			response.Error(c, errors.New(errors.ErrDeviceUnauthorized.Code, "X-API-KEY required", errors.ErrDeviceUnauthorized.StatusCode))
			c.Abort()
			return
		}

		device, err := validator.Validate(c.Request.Context(), key)
		if err != nil {
			if stderrors.Is(err, iauth.ErrInvalidDeviceKey) {
				response.Error(c, errors.ErrDeviceUnauthorized)
			} else {
				response.Error(c, errors.ErrInternalServer.WithInternal(err))
			}
			c.Abort()
			return
		}

		c.Set(CtxDeviceKey, device)
		c.Next()
	}
}

// DeviceFromContext returns the device authenticated by DeviceAuth.
func DeviceFromContext(c *gin.Context) (*iauth.DeviceContext, bool) {
	v, ok := c.Get(CtxDeviceKey)
	if !ok {
		return nil, false
	}
	device, ok := v.(*iauth.DeviceContext)
	return device, ok && device != nil
}
