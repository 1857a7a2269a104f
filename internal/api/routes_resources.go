package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/handlers"
)

type resourceRouteDeps struct {
	PinHandler         *handlers.PinHandler
	DeviceHandler      *handlers.DeviceHandler
	AccessLogHandler   *handlers.AccessLogHandler
	RoleBindingHandler *handlers.RoleBindingHandler
}

func registerResourceRoutes(protected *gin.RouterGroup, deps resourceRouteDeps) {
	pins := protected.Group("/pins")
	{
		pins.POST("", deps.PinHandler.Create)
		pins.GET("/:id", deps.PinHandler.Get)
		pins.PATCH("/:id", deps.PinHandler.Update)
		pins.DELETE("/:id", deps.PinHandler.Delete)
	}

	devices := protected.Group("/devices")
	{
		devices.POST("", deps.DeviceHandler.Create)
		devices.GET("/:id", deps.DeviceHandler.Get)
		devices.PATCH("/:id", deps.DeviceHandler.Update)
		devices.DELETE("/:id", deps.DeviceHandler.Delete)
	}

	protected.GET("/access-logs/:id", deps.AccessLogHandler.Get)

	bindings := protected.Group("/role-bindings")
	{
		bindings.POST("", deps.RoleBindingHandler.Create)
		bindings.GET("/:id", deps.RoleBindingHandler.Get)
		bindings.DELETE("/:id", deps.RoleBindingHandler.Delete)
	}
}
