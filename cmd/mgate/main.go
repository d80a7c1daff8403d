package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mgate/internal/api"
	"mgate/internal/broker"
	"mgate/internal/cache"
	"mgate/internal/config"
	"mgate/internal/logger"
	"mgate/internal/market"
	"mgate/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := os.Getenv("MGATE_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.WithFields(map[string]interface{}{
		"app": cfg.App.Name,
		"env": cfg.App.Env,
	}).Info("starting gateway")

	client, err := broker.NewMStockClient(&cfg.Broker)
	if err != nil {
		return fmt.Errorf("failed to create broker client: %w", err)
	}

	tokens := session.NewCache(cfg.Session.TokenFile)
	sessions := session.NewManager(client, tokens, &cfg.Broker)
	sessions.Restore()

	instruments := market.NewStore(client, cfg.Market.SnapshotFile)
	refresher, err := market.NewRefresher(instruments, cfg.Market.RefreshSchedule)
	if err != nil {
		return fmt.Errorf("failed to schedule instrument refresh: %w", err)
	}
	refresher.Start()
	defer refresher.Stop()

	var redisLimiter *cache.RedisLimiter
	if cfg.Redis.Addr != "" {
		redisLimiter, err = cache.NewRedisLimiter(&cfg.Redis)
		if err != nil {
			logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("redis unavailable, using in-memory rate limits")
		} else {
			defer redisLimiter.Close()
		}
	}

	dialer := broker.NewWSStreamDialer(cfg.Broker.WSURL, cfg.Broker.APIKey, sessions.Token)
	server := api.NewServer(cfg, sessions, instruments, dialer, redisLimiter)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.WithFields(map[string]interface{}{"signal": sig.String()}).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}
