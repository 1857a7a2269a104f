package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/app"
	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/handlers"
	"github.com/charlesng35/lockgate/internal/middleware"
)

type lockRouteDeps struct {
	LockHandler     *handlers.LockHandler
	SecurityHandler *handlers.SecurityHandler
	RealtimeHandler *handlers.RealtimeHandler
	UserHandler     *handlers.UserHandler
	Checker         middleware.SuperuserChecker
	DeviceKeys      *iauth.DeviceKeyValidator
	RateStore       middleware.RateStore
	PinLimit        app.RateLimitRule
}

func registerLockRoutes(public, protected *gin.RouterGroup, deps lockRouteDeps) {
	// Devices authenticate with an API key, not a bearer token. The limiter
	// runs first so rejected keys are counted against the caller's origin.
	validate := []gin.HandlerFunc{}
	if deps.PinLimit.Requests > 0 {
		validate = append(validate, middleware.RateLimitByKey(deps.RateStore, "validate_pin", deps.PinLimit.Requests, deps.PinLimit.Window, middleware.DeviceKeyOrOrigin("validate_pin")))
	}
	validate = append(validate, middleware.DeviceAuth(deps.DeviceKeys), deps.LockHandler.ValidatePin)
	public.POST("/locks/:uuid/validate_pin", validate...)
	public.GET("/locks/:uuid/events", deps.RealtimeHandler.LockEvents)

	locks := protected.Group("/locks")
	{
		locks.POST("", deps.LockHandler.Create)
		locks.POST("/claim", deps.LockHandler.Claim)
		locks.GET("/:uuid", deps.LockHandler.Get)
		locks.PATCH("/:uuid", deps.LockHandler.Update)
		locks.DELETE("/:uuid", deps.LockHandler.Delete)
		locks.PUT("/:uuid/network", deps.LockHandler.PutNetwork)
		locks.GET("/:uuid/network", deps.LockHandler.GetNetwork)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireSuperuser(deps.Checker))
	{
		admin.POST("/locks", deps.LockHandler.Provision)
		admin.PATCH("/users/:id", deps.UserHandler.Update)
		admin.GET("/security/audit", deps.SecurityHandler.Audit)
	}
}
