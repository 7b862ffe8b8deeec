package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-lifecycle/internal/auth"
	"github.com/example/ride-lifecycle/internal/config"
	httpapi "github.com/example/ride-lifecycle/internal/http"
	"github.com/example/ride-lifecycle/internal/lifecycle"
	"github.com/example/ride-lifecycle/internal/logging"
	"github.com/example/ride-lifecycle/internal/notify"
	"github.com/example/ride-lifecycle/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	store, ready, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := notify.NewHub(cfg.WSSendBuffer, logger)

	var publishers []notify.Publisher
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		// Every replica relays the shared channel into its own hub, so the hub
		// is not published to directly.
		publishers = append(publishers, notify.NewRedisPublisher(rc, cfg.RedisChannelPrefix))
		relay := notify.NewRedisRelay(rc, cfg.RedisChannelPrefix, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis relay stopped", "error", err)
			}
		}()
		logger.Info("redis fanout enabled", "addr", cfg.RedisAddr, "prefix", cfg.RedisChannelPrefix)
	} else {
		publishers = append(publishers, hub)
	}
	if len(cfg.KafkaBrokers) > 0 {
		ks := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer ks.Close()
		publishers = append(publishers, ks)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaEventsTopic)
	}
	if cfg.AMQPURL != "" {
		as, err := notify.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, cfg.NotifyTimeout, logger)
		if err != nil {
			return err
		}
		defer as.Close()
		publishers = append(publishers, as)
		logger.Info("amqp sink enabled", "exchange", cfg.AMQPExchange)
	}
	if cfg.WebhookURL != "" {
		publishers = append(publishers, notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookToken))
		logger.Info("webhook sink enabled", "endpoint", cfg.WebhookURL)
	}

	fanout := notify.NewFanout(logger, cfg.NotifyTimeout, publishers...)
	svc := lifecycle.NewService(store, fanout, logger)

	handler := httpapi.NewServer(httpapi.Deps{
		Rides:    svc,
		Hub:      hub,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Logger:   logger,
		Ready:    ready,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-lifecycle listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.RideStore, func(context.Context) error, func(), error) {
	if cfg.PGDSN == "" {
		logger.Warn("PG_DSN not set, rides are kept in memory")
		return storage.NewMemoryStore(), nil, func() {}, nil
	}
	pg, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.RunMigrations {
		if err := pg.ApplyMigration(ctx, cfg.MigrationPath); err != nil {
			_ = pg.Close()
			return nil, nil, nil, err
		}
		logger.Info("migration applied", "path", cfg.MigrationPath)
	}
	return pg, pg.Ping, func() { _ = pg.Close() }, nil
}
