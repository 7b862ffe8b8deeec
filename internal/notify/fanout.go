package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ride-lifecycle/internal/observability"
)

// Publisher is one delivery path for lifecycle events.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Fanout sends each event once to every configured publisher. Delivery is
// best effort: failures are logged and counted, never returned.
type Fanout struct {
	publishers []Publisher
	timeout    time.Duration
	logger     *slog.Logger
}

func NewFanout(logger *slog.Logger, timeout time.Duration, publishers ...Publisher) *Fanout {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Fanout{publishers: publishers, timeout: timeout, logger: logger.With("component", "fanout")}
}

func (f *Fanout) Notify(ctx context.Context, ev Event) {
	// The caller's request may finish before slow sinks do.
	base := context.WithoutCancel(ctx)
	for _, p := range f.publishers {
		err := f.publish(base, p, ev)
		if err != nil {
			observability.NotificationsPublished.WithLabelValues(p.Name(), "error").Inc()
			f.logger.Warn("publish failed",
				"sink", p.Name(), "event", string(ev.Type), "topic", ev.Topic, "ride_id", ev.RideID, "error", err)
			continue
		}
		observability.NotificationsPublished.WithLabelValues(p.Name(), "ok").Inc()
	}
}

// publish waits for p at most f.timeout, even when p does not honour its
// context. A late publisher finishes in the background.
func (f *Fanout) publish(ctx context.Context, p Publisher, ev Event) error {
	pctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Publish(pctx, ev) }()
	select {
	case err := <-done:
		return err
	case <-pctx.Done():
		return pctx.Err()
	}
}
