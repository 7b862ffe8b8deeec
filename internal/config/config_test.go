package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.NotifyTimeout != 2*time.Second || cfg.WSSendBuffer != 16 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.PGDSN != "" || cfg.RedisAddr != "" || len(cfg.KafkaBrokers) != 0 || cfg.AMQPURL != "" {
		t.Fatalf("optional backends must default off: %+v", cfg)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("NOTIFY_TIMEOUT", "500ms")
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":9090" || !cfg.RunMigrations || cfg.NotifyTimeout != 500*time.Millisecond || cfg.LogLevel != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestLoadServerConfigErrorsAreJoined(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("WS_SEND_BUFFER", "0")
	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"JWT_SECRET", "HTTP_READ_TIMEOUT", "WS_SEND_BUFFER"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_EVENTS_TOPIC", "events")
	t.Setenv("PROJECTOR_RETRY_ATTEMPTS", "5")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.KafkaTopic != "events" || cfg.RetryAttempts != 5 || cfg.KafkaGroup != "ride-event-projector" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("PROJECTOR_RETRY_ATTEMPTS", "0")
	if _, err := LoadConsumerConfig(); err == nil {
		t.Fatal("expected error for zero retry attempts")
	}
}
