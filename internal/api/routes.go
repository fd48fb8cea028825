package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/commit-streaks/internal/metrics"
)

// SetupRoutes sets up the API routes. m may be nil, which disables /metrics.
func SetupRoutes(handler *Handler, m *metrics.Metrics, logger *slog.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(logger))

	// Health check
	router.GET("/health", handler.HealthCheck)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		streaks := v1.Group("/streaks")
		{
			streaks.GET("", handler.GetStreaks)
			streaks.POST("/refresh", handler.RefreshStreaks)
		}

		achievements := v1.Group("/achievements")
		{
			achievements.GET("", handler.GetAchievements)
			achievements.GET("/stats", handler.GetAchievementStats)
		}

		v1.GET("/history", handler.GetHistory)
		v1.GET("/buckets", handler.GetBucket)
		v1.GET("/heatmap", handler.GetHeatmap)
		v1.GET("/momentum", handler.GetMomentum)
		v1.GET("/hall-of-fame", handler.GetHallOfFame)
		v1.GET("/recommend", handler.GetRecommendation)
		v1.GET("/repositories", handler.GetRepositories)

		if handler.tracker != nil {
			v1.POST("/track", handler.Track)
		}
		if handler.backfiller != nil {
			v1.POST("/backfill", handler.Backfill)
		}
	}

	return router
}
