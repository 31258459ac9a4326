package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/assetlens/internal/api/handler"
	"github.com/timmy/assetlens/internal/api/middleware"
	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/logger"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	analyzer handler.Analyzer,
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
	if limit := cfg.MaxUploadBytes(); limit > 0 {
		r.MaxMultipartMemory = limit
	}

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(analyzer)
	analysisHandler := handler.NewAnalysisHandler(analyzer, cfg.MaxUploadBytes())
	indexHandler := handler.NewIndexHandler(analyzer)

	// Health check
	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")
	{
		// Image pipeline
		api.POST("/analyze", analysisHandler.Analyze)
		api.POST("/moderate", analysisHandler.Moderate)
		api.POST("/describe", analysisHandler.Describe)

		// Vector search
		api.POST("/search", indexHandler.Search)
		api.POST("/index", indexHandler.Index)
		// Asset ids from directory ingest contain slashes.
		api.GET("/index/*asset_id", indexHandler.Records)
		api.DELETE("/index/*asset_id", indexHandler.Delete)
	}

	return r
}
