package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-lifecycle/internal/config"
	"github.com/example/ride-lifecycle/internal/logging"
	"github.com/example/ride-lifecycle/internal/notify"
)

var (
	eventsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "projector_events_consumed_total",
		Help: "Total ride lifecycle events consumed",
	})
	eventsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "projector_events_invalid_total",
		Help: "Total invalid ride lifecycle events received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "projector_redis_updates_total",
		Help: "Total successful redis projections",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "projector_redis_errors_total",
		Help: "Total redis projection errors",
	})
)

func init() {
	prometheus.MustRegister(eventsConsumed, eventsInvalid, redisUpdates, redisErrors)
}

// historyLimit caps the per-ride event list.
const historyLimit = 20

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel).With("component", "projector")

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	radapter := &redisAdapter{c: rc}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("projector listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down projector")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		eventsConsumed.Inc()

		ev, err := decodeEvent(m.Value)
		if err != nil {
			eventsInvalid.Inc()
			logger.Warn("invalid event", "error", err, "offset", m.Offset)
			continue
		}

		if err := projectWithRetry(ctx, radapter, ev, m.Value, cfg.RetryAttempts, cfg.RetryDelay); err != nil {
			redisErrors.Inc()
			logger.Error("redis projection failed", "ride_id", ev.RideID, "error", err)
			continue
		}
		redisUpdates.Inc()
	}
}

// projectedEvent is the subset of notify.Event the projector stores.
type projectedEvent struct {
	Type       notify.EventType `json:"type"`
	Topic      string           `json:"topic"`
	RideID     string           `json:"ride_id"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func decodeEvent(b []byte) (projectedEvent, error) {
	var ev projectedEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, err
	}
	if ev.RideID == "" || ev.Type == "" {
		return ev, errors.New("event missing ride_id or type")
	}
	return ev, nil
}

// RedisUpdater is the subset of redis operations the projector needs.
type RedisUpdater interface {
	HSet(ctx context.Context, key string, values map[string]interface{}) error
	PushHistory(ctx context.Context, key string, value []byte, limit int64) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return r.c.HSet(ctx, key, values).Err()
}

func (r *redisAdapter) PushHistory(ctx context.Context, key string, value []byte, limit int64) error {
	pipe := r.c.TxPipeline()
	pipe.LPush(ctx, key, value)
	pipe.LTrim(ctx, key, 0, limit-1)
	_, err := pipe.Exec(ctx)
	return err
}

// projectWithRetry records the latest event of a ride and then appends the
// raw event to its history. Each step is retried on its own, so a failed
// history write does not rewrite the hash.
func projectWithRetry(ctx context.Context, rc RedisUpdater, ev projectedEvent, raw []byte, attempts int, delay time.Duration) error {
	fields := map[string]interface{}{
		"type":        string(ev.Type),
		"topic":       ev.Topic,
		"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if err := withRetry(ctx, attempts, delay, func() error {
		return rc.HSet(ctx, "ride:last_event:"+ev.RideID, fields)
	}); err != nil {
		return fmt.Errorf("hset last event: %w", err)
	}
	if err := withRetry(ctx, attempts, delay, func() error {
		return rc.PushHistory(ctx, "ride:events:"+ev.RideID, raw, historyLimit)
	}); err != nil {
		return fmt.Errorf("push history: %w", err)
	}
	return nil
}

// withRetry runs fn up to attempts times, doubling delay between tries.
func withRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
