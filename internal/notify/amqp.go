package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrAMQPUnavailable = errors.New("rabbitmq connection unavailable")

// AMQPSink publishes lifecycle events to a RabbitMQ topic exchange. The
// routing key is the event topic with ':' replaced by '.', e.g. "rider.42".
// A lost connection is re-established in the background; Publish never dials.
type AMQPSink struct {
	url         string
	exchange    string
	dialTimeout time.Duration
	logger      *slog.Logger

	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
	closed       bool
}

func NewAMQPSink(url, exchange string, dialTimeout time.Duration, logger *slog.Logger) (*AMQPSink, error) {
	s := &AMQPSink{url: url, exchange: exchange, dialTimeout: dialTimeout, logger: logger.With("component", "amqp_sink")}
	conn, ch, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	s.conn, s.ch = conn, ch
	return s, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.conn == nil || s.conn.IsClosed() || s.ch == nil || s.ch.IsClosed() {
		s.startReconnectLocked()
		s.mu.Unlock()
		return ErrAMQPUnavailable
	}
	ch := s.ch
	s.mu.Unlock()

	return ch.PublishWithContext(ctx, s.exchange, RoutingKey(ev.Topic), false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        string(ev.Type),
		MessageId:   ev.RideID + ":" + string(ev.Type),
		Timestamp:   ev.OccurredAt,
		Body:        body,
	})
}

func RoutingKey(topic string) string { return strings.ReplaceAll(topic, ":", ".") }

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return closeAMQP(s.conn, s.ch)
}

// startReconnectLocked must be called with s.mu held.
func (s *AMQPSink) startReconnectLocked() {
	if s.reconnecting || s.closed {
		return
	}
	s.reconnecting = true
	s.logger.Info("rabbitmq connection closed, reconnecting")
	go s.reconnect()
}

func (s *AMQPSink) reconnect() {
	conn, ch, err := s.dial()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnecting = false
	if err != nil {
		s.logger.Warn("rabbitmq reconnect failed", "error", err)
		return
	}
	if s.closed {
		_ = closeAMQP(conn, ch)
		return
	}
	s.conn, s.ch = conn, ch
	s.logger.Info("rabbitmq reconnected")
}

// dial connects and declares the exchange. The TCP connect and the AMQP
// handshake are each bounded by dialTimeout.
func (s *AMQPSink) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(s.url, amqp.Config{
		Dial:      amqp.DefaultDial(s.dialTimeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := ch.ExchangeDeclare(s.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func closeAMQP(conn *amqp.Connection, ch *amqp.Channel) error {
	var errs []error
	if ch != nil && !ch.IsClosed() {
		errs = append(errs, ch.Close())
	}
	if conn != nil && !conn.IsClosed() {
		errs = append(errs, conn.Close())
	}
	return errors.Join(errs...)
}
