package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lessonlens/lessonlens/internal/infrastructure/http/middleware"
	"github.com/lessonlens/lessonlens/pkg/config"
)

// Router holds all handlers
type Router struct {
	cfg          *config.Config
	identity     *middleware.IdentityMiddleware
	chatHandler  *ChatHandler
	videoHandler *VideoHandler
	usageHandler *UsageHandler
}

// NewRouter creates a new router with all handlers
func NewRouter(
	cfg *config.Config,
	identity *middleware.IdentityMiddleware,
	chatHandler *ChatHandler,
	videoHandler *VideoHandler,
	usageHandler *UsageHandler,
) *Router {
	return &Router{
		cfg:          cfg,
		identity:     identity,
		chatHandler:  chatHandler,
		videoHandler: videoHandler,
		usageHandler: usageHandler,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// API v1 group; every route below requires a resolved identity
	v1 := e.Group("/v1", rt.identity.Resolve())

	rt.setupChatRoutes(v1)
	rt.setupVideoRoutes(v1)
	rt.setupUsageRoutes(v1)
}

// setupChatRoutes configures the learner-facing conversation routes
func (rt *Router) setupChatRoutes(g *echo.Group) {
	g.POST("/chat", rt.chatHandler.Ask)

	sessionGroup := g.Group("/sessions")
	sessionGroup.GET("", rt.chatHandler.ListSessions)
	sessionGroup.GET("/:id/messages", rt.chatHandler.SessionMessages)
}

// setupVideoRoutes configures the creator-facing registry and ingest routes
func (rt *Router) setupVideoRoutes(g *echo.Group) {
	videoGroup := g.Group("/videos", middleware.RequireRole("creator"))
	videoGroup.POST("", rt.videoHandler.Register)
	videoGroup.GET("", rt.videoHandler.List)
	videoGroup.DELETE("/:id", rt.videoHandler.Delete)
	videoGroup.POST("/:id/transcript", rt.videoHandler.IngestTranscript)
}

// setupUsageRoutes configures the spend reporting routes
func (rt *Router) setupUsageRoutes(g *echo.Group) {
	usageGroup := g.Group("/usage", middleware.RequireRole("creator"))
	usageGroup.GET("", rt.usageHandler.Today)
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"time":        time.Now().Format(time.RFC3339),
		"environment": rt.cfg.Server.Environment,
	})
}
