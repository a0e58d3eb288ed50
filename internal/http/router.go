// Package http assembles the Gin router and the HTTP server around it.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/civictrack/civictrack-service/internal/http/handlers"
	"github.com/civictrack/civictrack-service/internal/platform/logger"
	"github.com/civictrack/civictrack-service/internal/platform/middleware"
)

func NewRouter(log *logger.Logger, level logger.Level, adminKey string, issues *handlers.Issues, system *handlers.System) *gin.Engine {
	if level == logger.LevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Order matters
	r.Use(middleware.RequestID())
	r.Use(middleware.GinStructuredLogger(log))
	r.Use(middleware.Error(log))
	r.Use(middleware.Recovery(log))

	setupRoutes(r, adminKey, issues, system)
	return r
}

func setupRoutes(r *gin.Engine, adminKey string, issues *handlers.Issues, system *handlers.System) {
	r.GET("/health", system.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/issues", issues.Create)
		v1.GET("/issues", issues.List)
		v1.GET("/issues/similar", issues.Similar)
		v1.GET("/issues/:id", issues.GetByID)
		v1.POST("/issues/:id/comments", issues.AddComment)
		v1.POST("/issues/:id/flags", issues.Flag)

		v1.GET("/reporters/:id/issues", issues.ListByReporter)
	}

	admin := r.Group("/api/v1/admin", middleware.AdminKey(adminKey))
	{
		admin.PATCH("/issues/:id/status", issues.UpdateStatus)
		admin.PATCH("/issues/:id/visibility", issues.SetVisibility)
		admin.GET("/issues/flagged", issues.ListFlagged)
		admin.GET("/issues/category/:category", issues.ListByCategory)
		admin.GET("/stats", issues.Stats)
	}
}
