// Package router wires the HTTP surface: middleware, health and metrics
// endpoints and the versioned API routes.
package router

import (
	"github.com/CampusLink/notify-sync-backend/config"
	"github.com/CampusLink/notify-sync-backend/handlers"
	"github.com/CampusLink/notify-sync-backend/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds everything required to set up the routes.
type Dependencies struct {
	Config              *config.Config
	HealthHandler       *handlers.HealthHandler
	NotificationHandler *handlers.NotificationHandler
	MaintenanceHandler  *handlers.MaintenanceHandler
	BroadcastHandler    *handlers.BroadcastHandler
}

// SetupRouter configures and returns the main Gin engine with all routes defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))

	// Health and metrics, unversioned
	r.GET("/health", deps.HealthHandler.Liveness)
	r.GET("/health/readiness", deps.HealthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", deps.NotificationHandler.ListNotifications)
			notifications.POST("/:id/read", deps.NotificationHandler.MarkRead)
			notifications.POST("/read-all", deps.NotificationHandler.MarkAllRead)
			notifications.PATCH("/:id", deps.NotificationHandler.UpdateNotification)
			notifications.DELETE("/:id", deps.NotificationHandler.DeleteNotification)
		}

		maintenance := v1.Group("/maintenance")
		{
			maintenance.GET("/analysis", deps.MaintenanceHandler.Analyze)
			maintenance.POST("/cleanup", deps.MaintenanceHandler.Cleanup)
			maintenance.POST("/maintain", deps.MaintenanceHandler.Maintain)
			maintenance.POST("/reset", deps.MaintenanceHandler.Reset)
			maintenance.GET("/health/:actorId", deps.MaintenanceHandler.Health)
		}

		v1.POST("/broadcasts", deps.BroadcastHandler.Publish)
	}

	return r
}
