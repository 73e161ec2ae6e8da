package http

import (
	stdhttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/practicechat/internal/auth"
	"github.com/vovakirdan/practicechat/internal/messaging"
	"github.com/vovakirdan/practicechat/internal/metrics"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyPracticeID is the context key for storing practice ID.
	ContextKeyPracticeID = "practice_id"
)

// AuthMiddleware resolves the session token to a practice member. The token
// is read from the Authorization header, or from the token query parameter
// for browser WebSocket handshakes.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.Request)
		if !ok {
			logger.Debug().Msg("missing or malformed authorization")
			unauthorized(c, "missing authorization")
			return
		}

		id, err := authService.CurrentUser(c.Request.Context(), token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			unauthorized(c, "invalid token")
			return
		}

		c.Set(ContextKeyUserID, id.UserID)
		c.Set(ContextKeyPracticeID, id.PracticeID)

		c.Next()
	}
}

func bearerToken(r *stdhttp.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// identity returns the caller resolved by AuthMiddleware.
func identity(c *gin.Context) (messaging.Identity, bool) {
	uid, ok := c.Get(ContextKeyUserID)
	if !ok {
		return messaging.Identity{}, false
	}
	pid, ok := c.Get(ContextKeyPracticeID)
	if !ok {
		return messaging.Identity{}, false
	}
	userID, ok1 := uid.(int64)
	practiceID, ok2 := pid.(int64)
	if !ok1 || !ok2 {
		return messaging.Identity{}, false
	}
	return messaging.Identity{UserID: userID, PracticeID: practiceID}, true
}

// QueryScopeMiddleware rejects userId/practiceId query parameters that do not
// match the session. The parameters are optional.
func QueryScopeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			unauthorized(c, "unauthorized")
			return
		}
		if !scopeMatches(c.Request.URL.Query(), id) {
			unauthorized(c, "session does not match request")
			return
		}
		c.Next()
	}
}

func scopeMatches(query url.Values, id messaging.Identity) bool {
	return queryMatches(query, "userId", id.UserID) && queryMatches(query, "practiceId", id.PracticeID)
}

func queryMatches(query url.Values, key string, want int64) bool {
	raw := query.Get(key)
	if raw == "" {
		return true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	return err == nil && v == want
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// MetricsMiddleware records request counts and durations per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
