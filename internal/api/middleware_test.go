package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	rl := newRateLimiter(10, time.Minute, nil)
	rl.now = func() time.Time { return now }

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/orders", nil)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.allow(c, "1.2.3.4"), "request %d should pass", i+1)
	}
	assert.False(t, rl.allow(c, "1.2.3.4"), "11th request in the window must be rejected")

	// Other clients keep their own windows.
	assert.True(t, rl.allow(c, "5.6.7.8"))

	// A fresh window opens once the period elapses.
	now = now.Add(time.Minute)
	assert.True(t, rl.allow(c, "1.2.3.4"))
}

func TestRateLimiterMiddlewareReturns429(t *testing.T) {
	env := newTestEnv(t)
	env.server.cfg.RateLimit.Enabled = true
	env.server.limiter.limit = 3
	router := env.server.buildRouter()

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "RATE_LIMIT", errorCode(t, last))
}

func TestAdminGateConstantTimeCompare(t *testing.T) {
	router := gin.New()
	router.Use(adminGateMiddleware("secret-token"))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "not-the-token", http.StatusUnauthorized},
		{"prefix", "secret", http.StatusUnauthorized},
		{"valid", "secret-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.token != "" {
				req.Header.Set(adminTokenHeader, tc.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(requestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "caller-supplied-id", w.Header().Get("X-Request-ID"))
}

func TestTimingMiddlewareSetsProcessTime(t *testing.T) {
	router := gin.New()
	router.Use(timingMiddleware())
	router.GET("/slow", func(c *gin.Context) {
		time.Sleep(5 * time.Millisecond)
		c.String(http.StatusOK, "done")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

	header := w.Header().Get("X-Process-Time")
	require.NotEmpty(t, header)

	var seconds float64
	_, err := fmt.Sscanf(header, "%f", &seconds)
	require.NoError(t, err)
	assert.Greater(t, seconds, 0.0)
}
