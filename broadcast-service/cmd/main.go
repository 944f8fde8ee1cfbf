package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	redisClient "github.com/aaronwang/agreeconnect/broadcast-service/internal/redis"
	wsHandler "github.com/aaronwang/agreeconnect/broadcast-service/internal/websocket"
	"github.com/aaronwang/agreeconnect/shared/config"
	"github.com/aaronwang/agreeconnect/shared/logging"
	"github.com/aaronwang/agreeconnect/shared/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Config holds application configuration
type Config struct {
	ServerAddr    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LogLevel      string
	LogFormat     string
}

// loadConfig loads configuration from environment variables
func loadConfig() *Config {
	return &Config{
		ServerAddr:    config.GetEnv("SERVER_ADDR", ":8081"),
		RedisAddr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       config.GetEnvInt("REDIS_DB", 0),
		LogLevel:      config.GetEnv("LOG_LEVEL", logging.LogLevelInfo),
		LogFormat:     config.GetEnv("LOG_FORMAT", logging.LogFormatPlain),
	}
}

func run() error {
	cfg := loadConfig()
	logger, err := logging.NewDefaultLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = logger.With("service", "broadcast-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subscriber, err := redisClient.NewSubscriber(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger.With("component", "redis"))
	if err != nil {
		return err
	}
	defer subscriber.Close()

	if err := subscriber.SubscribeToPattern(ctx, models.ListingEventsPattern); err != nil {
		return err
	}
	logger.Info("subscribed", "pattern", models.ListingEventsPattern)

	manager := wsHandler.NewManager(logger.With("component", "rooms"),
		wsHandler.PrometheusMetrics("agreeconnect", "service", "broadcast-service"))
	handler := wsHandler.NewHandler(manager, subscriber, logger.With("component", "http"))

	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     handler.SetupRoutes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	messages := make(chan *redisClient.Message, 256)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(gctx)
	})
	g.Go(func() error {
		return subscriber.Listen(gctx, messages)
	})
	// Redis Pub/Sub -> rooms
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case msg := <-messages:
				manager.Broadcast(msg.ListingID, msg.Payload)
			}
		}
	})
	g.Go(func() error {
		logger.Info("http_listening", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("stopped", "err", err)
	return err
}
