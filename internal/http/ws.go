package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/example/ride-lifecycle/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Token auth guards the endpoint; browsers connect from the app origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS subscribes drivers to new requests and riders to updates on
// their own rides.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	topics := notify.TopicsFor(actor)
	if len(topics) == 0 {
		writeError(w, http.StatusForbidden, "forbidden", "no subscriptions for role")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	s.logger.Info("ws connected", "actor_id", actor.ID, "role", string(actor.Role), "topics", topics)
	s.hub.Serve(conn, topics)
	s.logger.Info("ws disconnected", "actor_id", actor.ID)
}
