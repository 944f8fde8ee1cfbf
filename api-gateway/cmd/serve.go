package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aaronwang/agreeconnect/api-gateway/internal/handlers"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/metrics"
	redisClient "github.com/aaronwang/agreeconnect/api-gateway/internal/redis"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/relay"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/service"
	"github.com/aaronwang/agreeconnect/api-gateway/internal/store"
	"github.com/aaronwang/agreeconnect/shared/config"
	"github.com/aaronwang/agreeconnect/shared/logging"
)

const (
	sinkNATS  = "nats"
	sinkKafka = "kafka"
	sinkNone  = "none"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the background workers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("event-sink", sinkNATS, "Where committed events are relayed (nats, kafka, none)")
}

// Config holds application configuration
type Config struct {
	ServerAddr        string
	DataDir           string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	NatsURL           string
	EventSink         string
	KafkaBrokers      []string
	KafkaTopic        string
	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	RelayInterval     time.Duration
	CORSOrigins       []string
	LogLevel          string
	LogFormat         string
}

// loadConfig binds the command's flags and reads the environment
func loadConfig(cmd *cobra.Command) (*Config, error) {
	bindings := map[string]string{
		"SERVER_ADDR": "addr",
		"EVENT_SINK":  "event-sink",
		"DATA_DIR":    "data-dir",
		"REDIS_ADDR":  "redis-addr",
		"LOG_LEVEL":   "log-level",
		"LOG_FORMAT":  "log-format",
	}
	for key, name := range bindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := config.BindFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	return &Config{
		ServerAddr:        config.GetEnv("SERVER_ADDR", ":8080"),
		DataDir:           config.GetEnv("DATA_DIR", "./data"),
		RedisAddr:         config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:           config.GetEnvInt("REDIS_DB", 0),
		NatsURL:           config.GetEnv("NATS_URL", nats.DefaultURL),
		EventSink:         config.GetEnv("EVENT_SINK", sinkNATS),
		KafkaBrokers:      config.GetEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:        config.GetEnv("KAFKA_TOPIC", "market-events"),
		SweepInterval:     config.GetEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		ReconcileInterval: config.GetEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		RelayInterval:     config.GetEnvDuration("RELAY_INTERVAL", time.Second),
		CORSOrigins:       config.GetEnvList("CORS_ORIGINS", []string{"*"}),
		LogLevel:          config.GetEnv("LOG_LEVEL", logging.LogLevelInfo),
		LogFormat:         config.GetEnv("LOG_FORMAT", logging.LogFormatPlain),
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.NewDefaultLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = logger.With("service", "api-gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	logger.Info("store_opened", "dir", cfg.DataDir)

	redis, err := redisClient.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redis.Close()
	logger.Info("redis_connected", "addr", cfg.RedisAddr)

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	m := metrics.PrometheusMetrics("agreeconnect", "service", "api-gateway")
	biddingService := service.NewBiddingService(st,
		service.WithBroadcaster(redis),
		service.WithLogger(logger),
		service.WithMetrics(m),
	)
	defer biddingService.Wait()

	handler := handlers.NewHandler(biddingService, logger.With("component", "http"), cfg.CORSOrigins)
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_listening", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("http_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return relay.New(st, publisher, logger.With("component", "relay"), m).Run(gctx, cfg.RelayInterval)
	})
	g.Go(func() error {
		return biddingService.RunSweeper(gctx, cfg.SweepInterval)
	})
	g.Go(func() error {
		return biddingService.RunReconciler(gctx, cfg.ReconcileInterval)
	})

	err = g.Wait()
	logger.Info("stopped", "err", err)
	return err
}

func newPublisher(ctx context.Context, cfg *Config, logger logging.Logger) (relay.Publisher, error) {
	switch cfg.EventSink {
	case sinkNATS:
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("api-gateway"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		p, err := relay.NewJetStreamPublisher(ctx, nc)
		if err != nil {
			nc.Close()
			return nil, err
		}
		logger.Info("event_sink_ready", "sink", sinkNATS, "url", cfg.NatsURL)
		return &natsPublisher{JetStreamPublisher: p, nc: nc}, nil
	case sinkKafka:
		p, err := relay.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		logger.Info("event_sink_ready", "sink", sinkKafka, "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return p, nil
	case sinkNone:
		return relay.NewLogPublisher(logger.With("component", "relay")), nil
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.EventSink)
	}
}

// natsPublisher owns the connection behind a JetStream publisher
type natsPublisher struct {
	*relay.JetStreamPublisher
	nc *nats.Conn
}

func (p *natsPublisher) Close() error {
	return p.nc.Drain()
}
