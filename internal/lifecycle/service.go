package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/ride-lifecycle/internal/models"
	"github.com/example/ride-lifecycle/internal/notify"
	"github.com/example/ride-lifecycle/internal/observability"
	"github.com/example/ride-lifecycle/internal/storage"
)

// Notifier receives an event after each committed transition.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event)
}

// Service is the entry point for every ride operation.
type Service struct {
	store    storage.RideStore
	notifier Notifier
	logger   *slog.Logger
	newID    func() string
}

func NewService(store storage.RideStore, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger.With("component", "lifecycle"),
		newID:    uuid.NewString,
	}
}

func (s *Service) RequestRide(ctx context.Context, actor models.Actor, req models.RideRequest) (models.Ride, error) {
	if err := Authorize(actor, ActionRequest, nil); err != nil {
		return s.reject(ActionRequest, err)
	}
	ride, err := NewRide(s.newID(), actor, req)
	if err != nil {
		return s.reject(ActionRequest, err)
	}
	if err := s.store.Create(ctx, &ride); err != nil {
		observability.RideTransitions.WithLabelValues(string(ActionRequest), "error").Inc()
		return models.Ride{}, fmt.Errorf("create ride: %w", err)
	}
	s.committed(ctx, ActionRequest, actor, "", ride)
	return ride, nil
}

func (s *Service) ListAvailableRides(ctx context.Context, actor models.Actor) ([]models.Ride, error) {
	if err := Authorize(actor, ActionListAvailable, nil); err != nil {
		return nil, err
	}
	rides, err := s.store.ListByStatus(ctx, models.StatusRequested)
	if err != nil {
		return nil, fmt.Errorf("list available rides: %w", err)
	}
	return rides, nil
}

func (s *Service) ListMyRides(ctx context.Context, actor models.Actor) ([]models.Ride, error) {
	if err := Authorize(actor, ActionListMine, nil); err != nil {
		return nil, err
	}
	rides, err := s.store.ListByParticipant(ctx, actor.ID, actor.Role)
	if err != nil {
		return nil, fmt.Errorf("list rides for %s: %w", actor.ID, err)
	}
	return rides, nil
}

func (s *Service) GetRide(ctx context.Context, actor models.Actor, rideID string) (models.Ride, error) {
	ride, err := s.load(ctx, rideID)
	if err != nil {
		return models.Ride{}, err
	}
	if err := Authorize(actor, ActionView, &ride); err != nil {
		return models.Ride{}, err
	}
	return ride, nil
}

func (s *Service) AcceptRide(ctx context.Context, actor models.Actor, rideID string) (models.Ride, error) {
	return s.transition(ctx, actor, rideID, ActionAccept, "")
}

func (s *Service) CompleteRide(ctx context.Context, actor models.Actor, rideID string) (models.Ride, error) {
	return s.transition(ctx, actor, rideID, ActionComplete, "")
}

func (s *Service) CancelRide(ctx context.Context, actor models.Actor, rideID, reason string) (models.Ride, error) {
	return s.transition(ctx, actor, rideID, ActionCancel, reason)
}

// transition runs guard, engine and compare-and-transition. A lost race is
// re-evaluated against fresh state once; a second loss is a Conflict.
func (s *Service) transition(ctx context.Context, actor models.Actor, rideID string, action Action, reason string) (models.Ride, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ride, err := s.load(ctx, rideID)
		if err != nil {
			return s.reject(action, err)
		}
		if err := Authorize(actor, action, &ride); err != nil {
			return s.reject(action, err)
		}
		d, err := Decide(ride, actor, action, reason)
		if err != nil {
			return s.reject(action, err)
		}
		updated, err := s.store.CompareAndTransition(ctx, rideID, d.From, d.Mutation)
		if err == nil {
			s.committed(ctx, action, actor, d.From, updated)
			return updated, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return s.reject(action, err)
		}
		observability.RideConflicts.WithLabelValues(string(action)).Inc()
		s.logger.Info("transition lost race", "ride_id", rideID, "action", string(action), "attempt", attempt+1, "actor_id", actor.ID)
	}
	return s.reject(action, models.ErrConflict)
}

func (s *Service) load(ctx context.Context, rideID string) (models.Ride, error) {
	ride, err := s.store.Get(ctx, rideID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return models.Ride{}, fmt.Errorf("load ride %s: %w", rideID, err)
	}
	return ride, err
}

func (s *Service) committed(ctx context.Context, action Action, actor models.Actor, from models.Status, ride models.Ride) {
	observability.RideTransitions.WithLabelValues(string(action), "ok").Inc()
	s.logger.Info("ride transition",
		"ride_id", ride.ID, "action", string(action), "from", string(from), "to", string(ride.Status), "actor_id", actor.ID)
	if s.notifier == nil {
		return
	}
	if ev, ok := eventFor(action, ride); ok {
		s.notifier.Notify(ctx, ev)
	}
}

func (s *Service) reject(action Action, err error) (models.Ride, error) {
	observability.RideTransitions.WithLabelValues(string(action), resultLabel(err)).Inc()
	return models.Ride{}, err
}

func eventFor(action Action, ride models.Ride) (notify.Event, bool) {
	switch action {
	case ActionRequest:
		return notify.RideRequested(ride), true
	case ActionAccept:
		return notify.RideAccepted(ride), true
	case ActionComplete:
		return notify.RideCompleted(ride), true
	case ActionCancel:
		return notify.RideCancelled(ride), true
	}
	return notify.Event{}, false
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrValidation):
		return "validation_error"
	}
	return "error"
}
