package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/aidentify/internal/api/dashboard"
	"github.com/liliang-cn/aidentify/internal/api/middleware"
	"github.com/liliang-cn/aidentify/internal/notify"
	"github.com/liliang-cn/aidentify/internal/service"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(
	store *service.SessionStore,
	uploads *service.UploadOrchestrator,
	feed *notify.Feed,
	logger *zap.Logger,
	cfg RouterConfig,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := dashboard.NewHandler(store, uploads, feed, logger)
	g := r.Group("/api")
	g.Use(middleware.Auth(cfg.APIKey))
	g.Use(middleware.Identity(store, logger))
	h.RegisterRoutes(g)

	return r
}
