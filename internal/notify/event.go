package notify

import (
	"time"

	"github.com/example/ride-lifecycle/internal/models"
)

type EventType string

const (
	EventRideRequested EventType = "ride-requested"
	EventRideAccepted  EventType = "ride-accepted"
	EventRideCompleted EventType = "ride-completed"
	EventRideCancelled EventType = "ride-cancelled"
)

// TopicDrivers reaches every connected driver.
const TopicDrivers = "drivers"

func RiderTopic(riderID string) string { return "rider:" + riderID }

// TopicsFor lists the topics an actor's live connection listens on.
func TopicsFor(a models.Actor) []string {
	switch a.Role {
	case models.RoleDriver:
		return []string{TopicDrivers}
	case models.RoleRider:
		return []string{RiderTopic(a.ID)}
	}
	return nil
}

// Event is the envelope delivered to subscribers of Topic.
type Event struct {
	Type       EventType `json:"type"`
	Topic      string    `json:"topic"`
	RideID     string    `json:"ride_id"`
	Ride       any       `json:"ride"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RideSummary is the driver-facing view of a new request. It carries no
// rider identity.
type RideSummary struct {
	ID          string  `json:"id"`
	Pickup      string  `json:"pickup"`
	Destination string  `json:"destination"`
	Fare        float64 `json:"fare"`
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
}

type RideAssignment struct {
	ID     string             `json:"id"`
	Driver models.Participant `json:"driver"`
}

type RideRef struct {
	ID string `json:"id"`
}

func RideRequested(r models.Ride) Event {
	return Event{
		Type:   EventRideRequested,
		Topic:  TopicDrivers,
		RideID: r.ID,
		Ride: RideSummary{
			ID:          r.ID,
			Pickup:      r.Pickup,
			Destination: r.Destination,
			Fare:        r.Fare,
			Distance:    r.Distance,
			Duration:    r.Duration,
		},
		OccurredAt: r.UpdatedAt,
	}
}

func RideAccepted(r models.Ride) Event {
	var driver models.Participant
	if r.Driver != nil {
		driver = *r.Driver
	}
	return Event{
		Type:       EventRideAccepted,
		Topic:      RiderTopic(r.Rider.ID),
		RideID:     r.ID,
		Ride:       RideAssignment{ID: r.ID, Driver: driver},
		OccurredAt: r.UpdatedAt,
	}
}

func RideCompleted(r models.Ride) Event {
	return Event{
		Type:       EventRideCompleted,
		Topic:      RiderTopic(r.Rider.ID),
		RideID:     r.ID,
		Ride:       RideRef{ID: r.ID},
		OccurredAt: r.UpdatedAt,
	}
}

// RideCancelled tells drivers to drop a request they may still be showing.
func RideCancelled(r models.Ride) Event {
	return Event{
		Type:       EventRideCancelled,
		Topic:      TopicDrivers,
		RideID:     r.ID,
		Ride:       RideRef{ID: r.ID},
		OccurredAt: r.UpdatedAt,
	}
}
