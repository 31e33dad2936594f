package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/accesswindow"
	"github.com/vovakirdan/wirenote/internal/auth"
	"github.com/vovakirdan/wirenote/internal/config"
	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/metrics"
	"github.com/vovakirdan/wirenote/internal/ratelimit"
	"github.com/vovakirdan/wirenote/internal/service/messages"
	"github.com/vovakirdan/wirenote/internal/service/notifications"
	"github.com/vovakirdan/wirenote/internal/service/users"
)

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Auth          *auth.Service
	Messages      *messages.Service
	Notifications *notifications.Service
	Users         *users.Service
	Hub           *core.Hub
	Limiter       *ratelimit.Limiter  // nil disables rate limiting
	Guard         *accesswindow.Guard // nil disables the access window
	Roles         *RolePolicy         // nil disables the role gate
	Metrics       *metrics.Metrics
	Clock         func() time.Time // defaults to time.Now

	// TrustedProxies may set X-Forwarded-For. Empty trusts no one.
	TrustedProxies []string
}

// NewServer builds an HTTP server with all routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Server.Addr,
		Handler:           NewRouter(deps, logger),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}

// NewRouter wires middleware and handlers into a gin engine.
func NewRouter(deps Deps, logger *zerolog.Logger) *gin.Engine {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	router := gin.New()
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		logger.Warn().Err(err).Strs("trusted_proxies", deps.TrustedProxies).Msg("ignoring trusted proxies")
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	gate := AccessWindowMiddleware(deps.Guard, deps.Clock, deps.Metrics, logger)
	limit := RateLimitMiddleware(deps.Limiter, deps.Clock, logger)
	requireAuth := AuthMiddleware(deps.Auth, logger)

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	messageHandlers := NewMessageHandlers(deps.Messages, logger)
	notificationHandlers := NewNotificationHandlers(deps.Notifications, logger)
	userHandlers := NewUserHandlers(deps.Users, logger)

	api := router.Group("/api", gate, limit)
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", requireAuth)
	if deps.Roles != nil {
		authed.Use(RoleMiddleware(deps.Roles, deps.Users, deps.Metrics, logger))
	}
	authed.POST("/messages", messageHandlers.Send)
	authed.GET("/messages/unread", messageHandlers.Unread)
	authed.GET("/messages/:id", messageHandlers.Get)
	authed.PATCH("/messages/:id", messageHandlers.Edit)
	authed.DELETE("/messages/:id", messageHandlers.Delete)
	authed.POST("/messages/:id/read", messageHandlers.MarkRead)
	authed.GET("/messages/:id/history", messageHandlers.History)
	authed.GET("/messages/:id/thread", messageHandlers.Thread)

	authed.GET("/notifications", notificationHandlers.List)
	authed.POST("/notifications/:id/read", notificationHandlers.MarkRead)

	authed.GET("/users/me", userHandlers.Me)
	authed.DELETE("/users/me", userHandlers.DeleteMe)

	ws := NewWSHandler(deps.Hub, deps.Auth, logger)
	router.GET("/ws", gate, gin.WrapH(ws))

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
