package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, svc *Services) {
	h := handlers.NewHealthHandler(svc.Health)

	registerHealthEndpoints(r, h)
	registerHealthEndpoints(r.Group("/api"), h)
}

func registerHealthEndpoints(router gin.IRouter, h *handlers.HealthHandler) {
	router.GET("/health", h.Summary)
	router.GET("/health/live", h.Live)
	router.GET("/health/ready", h.Ready)
}
