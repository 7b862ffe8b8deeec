package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-lifecycle/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxInbound = 512
)

// Subscription receives every message published to its topics after it was
// registered. Slow readers lose messages instead of blocking publishers.
type Subscription struct {
	C      <-chan []byte
	send   chan []byte
	topics []string
}

func (s *Subscription) Topics() []string { return s.topics }

// Hub holds the live subscriber sessions of this process, keyed by topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With("component", "hub"),
	}
}

func (h *Hub) Name() string { return "hub" }

func (h *Hub) Subscribe(topics ...string) *Subscription {
	ch := make(chan []byte, h.buffer)
	sub := &Subscription{C: ch, send: ch, topics: topics}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		set, ok := h.topics[t]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.topics[t] = set
		}
		set[sub] = struct{}{}
	}
	observability.WSSubscribers.Inc()
	return sub
}

// Unsubscribe removes sub from every topic and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := false
	for _, t := range sub.topics {
		set := h.topics[t]
		if _, ok := set[sub]; !ok {
			continue
		}
		removed = true
		delete(set, sub)
		if len(set) == 0 {
			delete(h.topics, t)
		}
	}
	if removed {
		close(sub.send)
		observability.WSSubscribers.Dec()
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish delivers ev to the local subscribers of ev.Topic.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Deliver(ev.Topic, b)
	return nil
}

// Deliver hands msg to each subscriber of topic without blocking and reports
// how many received it.
func (h *Hub) Deliver(topic string, msg []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sub := range h.topics[topic] {
		select {
		case sub.send <- msg:
			delivered++
		default:
			observability.NotificationsDropped.Inc()
			h.logger.Warn("subscriber buffer full, dropping message", "topic", topic)
		}
	}
	return delivered
}

// Serve pumps messages for topics to conn until the peer goes away. It blocks
// and closes conn on return.
func (h *Hub) Serve(conn *websocket.Conn, topics []string) {
	sub := h.Subscribe(topics...)
	done := make(chan struct{})
	defer func() {
		h.Unsubscribe(sub)
		<-done
		_ = conn.Close()
	}()

	go func() {
		defer close(done)
		h.writePump(conn, sub)
	}()

	conn.SetReadLimit(maxInbound)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Inbound frames are ignored; reading keeps pong and close handling alive.
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read ended", "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("ws send error", "error", err)
				// Unblock the reader so Serve can unsubscribe.
				_ = conn.Close()
				drain(sub.C)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				drain(sub.C)
				return
			}
		}
	}
}

func drain(c <-chan []byte) {
	for range c {
	}
}
