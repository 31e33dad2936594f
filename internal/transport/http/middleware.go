package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/accesswindow"
	"github.com/vovakirdan/wirenote/internal/auth"
	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/metrics"
	"github.com/vovakirdan/wirenote/internal/ratelimit"
	"github.com/vovakirdan/wirenote/internal/store"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the context key for storing username.
	ContextKeyUsername = "username"
)

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header", Code: core.ErrCodeUnauthorized})
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format", Code: core.ErrCodeUnauthorized})
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Code: core.ErrCodeUnauthorized})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUsername, claims.Username)

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event = event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start))
		if uid, ok := c.Get(ContextKeyUserID); ok {
			event = event.Interface("user_id", uid)
		}
		event.Msg("http request")
	}
}

// AccessWindowResponse is returned when a request arrives outside the access window.
type AccessWindowResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	CurrentTime  string `json:"current_time"`
	AllowedHours string `json:"allowed_hours"`
}

// AccessWindowMiddleware rejects requests while the guard is closed.
func AccessWindowMiddleware(guard *accesswindow.Guard, clock func() time.Time, m *metrics.Metrics, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := clock()
		if guard.IsOpen(now) {
			c.Next()
			return
		}

		m.AccessWindowDenied()
		logger.Debug().
			Str("path", c.Request.URL.Path).
			Time("now", now).
			Msg("request outside access window")
		c.AbortWithStatusJSON(http.StatusForbidden, AccessWindowResponse{
			Error:        "Access denied",
			Code:         core.ErrCodeOutsideWindow,
			Message:      "The service is only available between " + guard.AllowedHours(),
			CurrentTime:  now.In(guard.Location()).Format(time.TimeOnly),
			AllowedHours: guard.AllowedHours(),
		})
	}
}

// RateLimitResponse is returned when a client exceeds the write limit.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after"`
}

// RateLimitMiddleware throttles write requests per client IP. Reads pass
// through. The client IP comes from X-Forwarded-For only when the peer is a
// trusted proxy of the engine.
func RateLimitMiddleware(limiter *ratelimit.Limiter, clock func() time.Time, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || !isWrite(c.Request.Method) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if limiter.Allow(ip, clock()) {
			c.Next()
			return
		}

		retry := int(limiter.Window().Seconds())
		logger.Warn().Str("client_ip", ip).Str("path", c.Request.URL.Path).Msg("rate limit exceeded")
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
			Error:      "rate limit exceeded",
			Code:       core.ErrCodeRateLimited,
			RetryAfter: retry,
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// RolePolicy restricts path prefixes to a set of roles.
type RolePolicy struct {
	Prefixes []string
	Allowed  []store.Role
}

func (p *RolePolicy) protects(path string) bool {
	for _, prefix := range p.Prefixes {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func (p *RolePolicy) allows(role store.Role) bool {
	for _, r := range p.Allowed {
		if r == role {
			return true
		}
	}
	return false
}

// UserLookup resolves the account behind an authenticated request.
type UserLookup interface {
	Get(ctx context.Context, userID int64) (*store.User, error)
}

// RoleDeniedResponse is returned when the caller's role may not use a path.
type RoleDeniedResponse struct {
	Error         string       `json:"error"`
	Code          string       `json:"code"`
	Message       string       `json:"message"`
	YourRole      string       `json:"your_role"`
	RequiredRoles []store.Role `json:"required_roles"`
}

// RoleMiddleware rejects callers whose role is not allowed on a protected
// path. It must run after AuthMiddleware.
func RoleMiddleware(policy *RolePolicy, users UserLookup, m *metrics.Metrics, logger *zerolog.Logger) gin.HandlerFunc {
	names := make([]string, len(policy.Allowed))
	for i, r := range policy.Allowed {
		names[i] = string(r)
	}
	message := "Access restricted to roles: " + strings.Join(names, ", ")

	return func(c *gin.Context) {
		if !policy.protects(c.Request.URL.Path) {
			c.Next()
			return
		}

		u, err := users.Get(c.Request.Context(), currentUserID(c))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "account no longer exists", Code: core.ErrCodeUnauthorized})
				return
			}
			writeError(c, logger, err)
			c.Abort()
			return
		}
		if policy.allows(u.Role) {
			c.Next()
			return
		}

		m.RoleGateDenied()
		logger.Debug().
			Int64("user_id", u.ID).
			Str("role", string(u.Role)).
			Str("path", c.Request.URL.Path).
			Msg("role not allowed")
		c.AbortWithStatusJSON(http.StatusForbidden, RoleDeniedResponse{
			Error:         "Permission denied",
			Code:          core.ErrCodeForbidden,
			Message:       message,
			YourRole:      string(u.Role),
			RequiredRoles: policy.Allowed,
		})
	}
}
