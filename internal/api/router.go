package api

import (
	"github.com/gin-gonic/gin"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/api/handler"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/api/middleware"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/config"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/logger"
)

// SetupRouter configures the Gin router with the backend job contract.
func SetupRouter(
	jobHandler *handler.JobHandler,
	hub *SocketHub,
	cfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler()

	// Health check
	r.GET("/health", healthHandler.Health)

	// Push channel; auth travels as a handshake query parameter
	r.GET("/socket", hub.Handler(cfg.Token))

	// Job API
	jobs := r.Group("/jobs")
	jobs.Use(middleware.BearerAuth(cfg.Token))
	{
		jobs.GET("", jobHandler.ListJobs)
		jobs.POST("", jobHandler.CreateJob)
		jobs.POST("/preview", jobHandler.Preview)
		jobs.POST("/:id/cancel", jobHandler.CancelJob)
		jobs.GET("/:id/log", jobHandler.GetLog)
	}

	return r
}
