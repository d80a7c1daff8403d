package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mgate/internal/broker"
	"mgate/internal/cache"
	"mgate/internal/config"
	"mgate/internal/logger"
	"mgate/internal/market"
	"mgate/internal/monitoring"
	"mgate/internal/session"
)

// Server owns the HTTP listener and the route table.
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	httpServer *http.Server

	auth    *AuthHandler
	orders  *OrderHandler
	markets *MarketHandler
	ws      *WebSocketHandler
	metrics *monitoring.Metrics
	limiter *rateLimiter
}

// NewServer wires the middleware chain and all routes. The redis limiter is
// optional; pass nil to use in-memory rate limit windows.
func NewServer(
	cfg *config.Config,
	sessions *session.Manager,
	instruments *market.Store,
	dialer broker.StreamDialer,
	redis *cache.RedisLimiter,
) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := monitoring.NewMetrics()
	s := &Server{
		cfg:     cfg,
		auth:    NewAuthHandler(sessions),
		orders:  NewOrderHandler(sessions),
		markets: NewMarketHandler(sessions, instruments),
		ws:      NewWebSocketHandler(dialer, metrics),
		metrics: metrics,
		limiter: newRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute, redis),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(timingMiddleware())
	router.Use(s.metrics.Middleware())
	if s.cfg.RateLimit.Enabled {
		router.Use(s.limiter.middleware())
	}

	// Open endpoints.
	router.GET("/healthz", s.healthz)
	router.GET("/metrics", gin.WrapH(monitoring.Handler()))
	router.GET("/ws/ticks", s.ws.Ticks)
	router.GET("/ws/orders", s.ws.Orders)

	// Everything below requires the admin token.
	gated := router.Group("/", adminGateMiddleware(s.cfg.Admin.Token))

	auth := gated.Group("/auth")
	{
		auth.POST("/login", s.auth.Login)
		auth.POST("/session", s.auth.Session)
		auth.POST("/logout", s.auth.Logout)
	}

	orders := gated.Group("/orders")
	{
		orders.POST("", s.orders.Place)
		orders.POST("/modify", s.orders.Modify)
		orders.POST("/cancel", s.orders.Cancel)
		orders.GET("", s.orders.List)
		orders.POST("/status", s.orders.Status)
	}

	gated.GET("/trades", s.orders.Trades)
	gated.GET("/positions/net", s.orders.Positions)
	gated.GET("/portfolio/holdings", s.orders.Holdings)

	marketGroup := gated.Group("/market")
	{
		marketGroup.POST("/ltp", s.markets.LTP)
		marketGroup.POST("/ohlc", s.markets.OHLC)
		marketGroup.POST("/historical", s.markets.Historical)
		marketGroup.GET("/instruments", s.markets.Instruments)
		marketGroup.POST("/loser_gainer", s.markets.LoserGainer)
	}

	gated.GET("/symbols/search", s.markets.SymbolSearch)

	return router
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"ts": time.Now().UTC().Format(time.RFC3339),
	})
}

// Router exposes the gin engine for in-process tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks serving HTTP until Stop is called or the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	logger.WithFields(map[string]interface{}{
		"addr": addr,
		"env":  s.cfg.App.Env,
	}).Info("http server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	logger.Info("http server stopping")
	s.ws.Close()
	return s.httpServer.Shutdown(ctx)
}
