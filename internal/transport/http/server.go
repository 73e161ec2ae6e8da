package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/auth"
	"github.com/vovakirdan/practicechat/internal/config"
	"github.com/vovakirdan/practicechat/internal/core"
	"github.com/vovakirdan/practicechat/internal/messaging"
)

// NewServer builds the HTTP server.
func NewServer(svc *messaging.Service, hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(svc, hub, authService, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter serves /ws from a plain mux and everything else through gin.
// gin refuses to hijack a writer whose upgrade headers are already written.
func NewRouter(svc *messaging.Service, hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg.WSFramesPerSecond, cfg.WSFrameBurst, logger))
	mux.Handle("/", newRESTRouter(svc, authService, cfg, logger))
	return mux
}

func newRESTRouter(svc *messaging.Service, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	if cfg.MetricsEnabled {
		router.Use(MetricsMiddleware())
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.GET("/health", healthHandler)

	handlers := NewMessagingHandlers(svc, logger)

	authed := router.Group("/")
	authed.Use(AuthMiddleware(authService, logger))
	authed.Use(QueryScopeMiddleware())
	{
		authed.GET("/conversations", handlers.ListConversations)
		authed.POST("/conversations", handlers.CreateConversation)
		authed.GET("/conversations/:id/messages", handlers.ListMessages)
		authed.POST("/messages", handlers.SendMessage)
		authed.GET("/announcements", handlers.Announcements)
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
