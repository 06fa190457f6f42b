package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/reel-extract-go/api/handlers"
	"github.com/yourusername/reel-extract-go/api/middleware"
	"github.com/yourusername/reel-extract-go/internal/domain"
	"github.com/yourusername/reel-extract-go/pkg/logger"
)

// Version is reported by /health
var Version = "dev"

// RouterOptions carries the dependencies of the HTTP API.
// History and Events may be nil.
type RouterOptions struct {
	Server  *domain.ServerConfig
	Fetcher handlers.Fetcher
	History domain.FetchRepository
	LogsDir string
	Logger  *zap.Logger
	Events  *logger.MultiLogger
}

// SetupRouter sets up the HTTP router
func SetupRouter(opts RouterOptions) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log, opts.Events))
	router.Use(middleware.Recovery(log, opts.Events))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(opts.Fetcher, Version)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	token := ""
	if opts.Server != nil {
		token = opts.Server.AuthToken
	}

	// API v1 routes
	v1 := router.Group("/api/v1", middleware.BearerAuth(token))
	{
		fetchHandler := handlers.NewFetchHandler(opts.Fetcher, log)
		v1.POST("/fetch", fetchHandler.Fetch)
		v1.GET("/classify", fetchHandler.Classify)

		historyHandler := handlers.NewHistoryHandler(opts.History, log)
		history := v1.Group("/history")
		{
			history.GET("", historyHandler.ListHistory)
			history.GET("/stats", historyHandler.GetStats)
			history.GET("/:id", historyHandler.GetRecord)
		}

		logReader := logger.NewLogReader(opts.LogsDir)
		logHandler := handlers.NewLogHandler(logReader)
		wsHandler := handlers.NewLogWebSocketHandler(logReader, log)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/stream", wsHandler.HandleWebSocket)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
