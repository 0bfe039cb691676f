package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/music-miko/t/api/handlers"
	"github.com/music-miko/t/api/middleware"
	"github.com/music-miko/t/pkg/logger"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	pipeline handlers.Pipeline,
	readiness map[string]handlers.ReadinessCheck,
	log *zap.Logger,
	events *logger.MultiLogger,
	logsDir string,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log, events))

	healthHandler := handlers.NewHealthHandler(readiness)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		acquireHandler := handlers.NewAcquireHandler(pipeline, log)
		v1.POST("/acquire", acquireHandler.Acquire)
		v1.GET("/resolve", acquireHandler.Resolve)
		v1.GET("/stats", acquireHandler.GetStats)
		v1.POST("/stats/reset", acquireHandler.ResetStats)

		eventHandler := handlers.NewEventHandler(logsDir)
		v1.GET("/events/:category", eventHandler.GetEvents)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}
