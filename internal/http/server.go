package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-lifecycle/internal/auth"
	"github.com/example/ride-lifecycle/internal/lifecycle"
	"github.com/example/ride-lifecycle/internal/notify"
)

type Deps struct {
	Rides    *lifecycle.Service
	Hub      *notify.Hub
	Verifier *auth.Verifier
	Logger   *slog.Logger
	// Ready reports backing-store health for /ready; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	rides    *lifecycle.Service
	hub      *notify.Hub
	verifier *auth.Verifier
	logger   *slog.Logger
	ready    func(ctx context.Context) error
	mux      *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{
		rides:    d.Rides,
		hub:      d.Hub,
		verifier: d.Verifier,
		logger:   d.Logger.With("component", "http"),
		ready:    d.Ready,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	// Fixed paths first so they are not captured by {id}.
	api.HandleFunc("/rides", s.handleRequestRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/available", s.handleListAvailable).Methods(http.MethodGet)
	api.HandleFunc("/rides/me", s.handleListMine).Methods(http.MethodGet)
	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods(http.MethodGet)
	api.HandleFunc("/rides/{id}/accept", s.handleAcceptRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/{id}/complete", s.handleCompleteRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/{id}/cancel", s.handleCancelRide).Methods(http.MethodPost)

	s.mux.Handle("/ws", s.authMiddleware(http.HandlerFunc(s.handleWS))).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
