package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/app"
	"github.com/charlesng35/lockgate/internal/handlers"
	"github.com/charlesng35/lockgate/internal/middleware"
)

type authRouteDeps struct {
	AuthHandler      *handlers.AuthHandler
	TwoFactorHandler *handlers.TwoFactorHandler
	RateStore        middleware.RateStore
	LoginLimit       app.RateLimitRule
}

func registerAuthRoutes(public, protected *gin.RouterGroup, deps authRouteDeps) {
	var loginLimit []gin.HandlerFunc
	if deps.LoginLimit.Requests > 0 {
		loginLimit = append(loginLimit, middleware.RateLimitByKey(deps.RateStore, "login", deps.LoginLimit.Requests, deps.LoginLimit.Window, middleware.ClientIPPathKey))
	}

	public.POST("/auth/register", append(loginLimit, deps.AuthHandler.Register)...)

	token := public.Group("/token")
	{
		token.POST("/2fa-challenge", append(loginLimit, deps.AuthHandler.Challenge)...)
		token.POST("/2fa-verify", append(loginLimit, deps.AuthHandler.Verify)...)
		token.POST("/refresh", deps.AuthHandler.Refresh)
	}

	protected.GET("/me", deps.AuthHandler.Me)
	protected.POST("/auth/logout", deps.AuthHandler.Logout)

	twoFactor := protected.Group("/2fa")
	{
		twoFactor.POST("/setup", deps.TwoFactorHandler.Setup)
		twoFactor.POST("/confirm", deps.TwoFactorHandler.Confirm)
		twoFactor.POST("/disable", deps.TwoFactorHandler.Disable)
	}
}
