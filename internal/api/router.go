package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/lockgate/internal/app"
	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/handlers"
	"github.com/charlesng35/lockgate/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(cfg *app.Config, jwt *iauth.JWTService, sessions *iauth.SessionService, svc *Services, rateStore middleware.RateStore) (*gin.Engine, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if jwt == nil {
		return nil, errors.New("jwt service must be provided")
	}
	if sessions == nil {
		return nil, errors.New("session service must be provided")
	}
	if svc == nil {
		return nil, errors.New("services must be provided")
	}
	if rateStore == nil {
		return nil, errors.New("rate limit store must be provided")
	}

	r := gin.New()
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			return nil, err
		}
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	if limit := cfg.RateLimit.Global; limit.Requests > 0 {
		r.Use(middleware.RateLimit(rateStore, limit.Requests, limit.Window))
	}

	registerHealthRoutes(r, svc)

	api := r.Group("/api")
	protected := api.Group("")
	protected.Use(middleware.Auth(jwt))

	registerAuthRoutes(api, protected, authRouteDeps{
		AuthHandler:      handlers.NewAuthHandler(svc.Users, svc.TwoFactor, sessions),
		TwoFactorHandler: handlers.NewTwoFactorHandler(svc.TwoFactor),
		RateStore:        rateStore,
		LoginLimit:       cfg.RateLimit.Login,
	})

	registerLockRoutes(api, protected, lockRouteDeps{
		LockHandler:     handlers.NewLockHandler(svc.Locks, svc.Network, svc.Validation),
		SecurityHandler: handlers.NewSecurityHandler(svc.Audit),
		RealtimeHandler: handlers.NewRealtimeHandler(svc.Realtime, jwt, svc.Locks),
		UserHandler:     handlers.NewUserHandler(svc.Users, sessions),
		Checker:         svc.Checker,
		DeviceKeys:      svc.DeviceKeys,
		RateStore:       rateStore,
		PinLimit:        cfg.RateLimit.ValidatePin,
	})

	registerResourceRoutes(protected, resourceRouteDeps{
		PinHandler:         handlers.NewPinHandler(svc.Pins),
		DeviceHandler:      handlers.NewDeviceHandler(svc.Devices),
		AccessLogHandler:   handlers.NewAccessLogHandler(svc.AccessLogs),
		RoleBindingHandler: handlers.NewRoleBindingHandler(svc.RoleBindings),
	})

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
