package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mgate/internal/cache"
	"mgate/internal/errors"
	"mgate/internal/logger"
	"mgate/internal/monitoring"
)

const adminTokenHeader = "X-Admin-Token"

// requestIDMiddleware tags every request for log correlation. An inbound
// X-Request-ID is honored so callers can trace across systems.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// adminGateMiddleware rejects any request whose X-Admin-Token header does not
// match the configured token. Constant-time comparison; rejection happens
// before any broker call.
func adminGateMiddleware(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		supplied := []byte(c.GetHeader(adminTokenHeader))
		if len(supplied) == 0 || subtle.ConstantTimeCompare(expected, supplied) != 1 {
			abortWithError(c, errors.ErrInvalidAdminToken())
			return
		}
		c.Next()
	}
}

// rateLimiter is a fixed-window limiter keyed by client address. Windows live
// in memory, or in Redis when a shared backend is configured.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
	redis   *cache.RedisLimiter
}

type window struct {
	start time.Time
	count int
}

func newRateLimiter(limit int, period time.Duration, redis *cache.RedisLimiter) *rateLimiter {
	return &rateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
		redis:   redis,
	}
}

// allow reports whether one more request from key fits the current window.
func (rl *rateLimiter) allow(c *gin.Context, key string) bool {
	if rl.redis != nil {
		ok, err := rl.redis.Allow(c.Request.Context(), key, rl.limit, rl.period)
		if err == nil {
			return ok
		}
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("redis rate limit check failed, using in-memory window")
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.period {
		rl.windows[key] = &window{start: now, count: 1}
		if len(rl.windows) > 4096 {
			rl.sweepLocked(now)
		}
		return true
	}

	w.count++
	return w.count <= rl.limit
}

func (rl *rateLimiter) sweepLocked(now time.Time) {
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.period {
			delete(rl.windows, key)
		}
	}
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c, c.ClientIP()) {
			abortWithError(c, errors.ErrRateLimited())
			return
		}
		c.Next()
	}
}

// timingMiddleware measures wall-clock duration, attaches it as a response
// header and emits one structured log line per request. Observability only.
func timingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		c.Header("X-Process-Time", fmt.Sprintf("%.4f", elapsed.Seconds()))
		logger.WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": elapsed.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"request_id":  c.GetString("request_id"),
		}).Info("request completed")
	}
}

// abortWithError converts any error to the client-facing envelope, logging
// internals without leaking them.
func abortWithError(c *gin.Context, err error) {
	appErr := errors.Wrap(err, errors.ErrCodeInternal, "Internal server error")
	if appErr.RequestID == "" {
		appErr = appErr.WithRequestID(c.GetString("request_id"))
	}

	fields := map[string]interface{}{
		"error_code": appErr.Code,
		"message":    appErr.Message,
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"request_id": appErr.RequestID,
	}
	if appErr.Cause != nil {
		fields["cause"] = appErr.Cause.Error()
	}

	switch appErr.Code {
	case errors.ErrCodeUpstream, errors.ErrCodeUpstreamRejected, errors.ErrCodeTimeout:
		monitoring.NewMetrics().RecordBrokerError(string(appErr.Code))
	}

	switch appErr.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.WithFields(fields).Error("request failed")
	case errors.SeverityMedium:
		logger.WithFields(fields).Warn("request failed")
	default:
		logger.WithFields(fields).Info("request rejected")
	}

	c.AbortWithStatusJSON(appErr.HTTPStatus(), errors.NewResponse(appErr, c.Request.URL.Path))
}

// writeRaw passes a vendor response body through unmodified.
func writeRaw(c *gin.Context, raw []byte) {
	c.Data(http.StatusOK, "application/json", raw)
}
