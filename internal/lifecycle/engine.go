// Package lifecycle decides and applies ride state transitions.
package lifecycle

import (
	"math"
	"strings"

	"github.com/example/ride-lifecycle/internal/models"
)

type Action string

const (
	ActionRequest       Action = "request"
	ActionAccept        Action = "accept"
	ActionComplete      Action = "complete"
	ActionCancel        Action = "cancel"
	ActionListAvailable Action = "list_available"
	ActionListMine      Action = "list_mine"
	ActionView          Action = "view"
)

type transition struct {
	from   models.Status
	to     models.Status
	reject string // reason reported when the ride is not in from
}

// transitions is the ride state graph. Request has no source state and is
// handled by NewRide.
var transitions = map[Action]transition{
	ActionAccept:   {from: models.StatusRequested, to: models.StatusAccepted, reject: "ride is no longer available"},
	ActionComplete: {from: models.StatusAccepted, to: models.StatusCompleted, reject: "ride is not in accepted state"},
	ActionCancel:   {from: models.StatusRequested, to: models.StatusCancelled, reject: "ride can no longer be cancelled"},
}

// Decision is the outcome of a legal transition: the status the store must
// still hold and the mutation to apply.
type Decision struct {
	From     models.Status
	Mutation models.Mutation
}

// Decide maps the ride's current status and the requested action to a
// Decision, or a *models.TransitionError when the action is not legal now.
func Decide(r models.Ride, actor models.Actor, action Action, reason string) (Decision, error) {
	t, ok := transitions[action]
	if !ok {
		return Decision{}, &models.TransitionError{Action: string(action), Current: r.Status, Reason: "unsupported action"}
	}
	if r.Status != t.from {
		return Decision{}, &models.TransitionError{Action: string(action), Current: r.Status, Reason: t.reject}
	}
	d := Decision{From: t.from, Mutation: models.Mutation{To: t.to}}
	switch action {
	case ActionAccept:
		p := actor.Participant()
		d.Mutation.Driver = &p
	case ActionCancel:
		d.Mutation.CancelReason = reason
	}
	return d, nil
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to models.Status) bool {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

// NewRide builds the initial requested ride for rider, validating the
// caller-supplied fields.
func NewRide(id string, rider models.Actor, req models.RideRequest) (models.Ride, error) {
	var bad []string
	pickup := strings.TrimSpace(req.Pickup)
	destination := strings.TrimSpace(req.Destination)
	if pickup == "" {
		bad = append(bad, "pickup")
	}
	if destination == "" {
		bad = append(bad, "destination")
	}
	if !nonNegative(req.Fare) {
		bad = append(bad, "fare")
	}
	if !nonNegative(req.Distance) {
		bad = append(bad, "distance")
	}
	if !nonNegative(req.Duration) {
		bad = append(bad, "duration")
	}
	if len(bad) > 0 {
		return models.Ride{}, &models.ValidationError{Fields: bad}
	}
	return models.Ride{
		ID:          id,
		Rider:       rider.Participant(),
		Status:      models.StatusRequested,
		Pickup:      pickup,
		Destination: destination,
		Fare:        req.Fare,
		Distance:    req.Distance,
		Duration:    req.Duration,
	}, nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
