package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher broadcasts events on Redis pub/sub so every server instance
// can reach its own WebSocket subscribers.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (r *RedisPublisher) Name() string { return "redis" }

func (r *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.prefix+ev.Topic, b).Err()
}

// RedisRelay feeds messages from Redis pub/sub into the local hub.
type RedisRelay struct {
	client *redis.Client
	prefix string
	hub    *Hub
	logger *slog.Logger
}

func NewRedisRelay(client *redis.Client, prefix string, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, prefix: prefix, hub: hub, logger: logger.With("component", "redis_relay")}
}

// Run blocks until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, r.prefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("relay subscribed", "pattern", r.prefix+"*")
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic := strings.TrimPrefix(msg.Channel, r.prefix)
			n := r.hub.Deliver(topic, []byte(msg.Payload))
			r.logger.Debug("relayed", "topic", topic, "subscribers", n)
		}
	}
}
