package models

import "time"

// Status is the lifecycle state of a ride.
type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

func (r Role) Valid() bool { return r == RoleRider || r == RoleDriver }

// Actor is an authenticated caller. Name and Phone are the public profile
// copied onto rides the actor participates in.
type Actor struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (a Actor) Participant() Participant {
	return Participant{ID: a.ID, Name: a.Name, Phone: a.Phone}
}

// Participant is the minimal identity exposed on a ride.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// RideRequest carries the caller-supplied fields of a new ride.
type RideRequest struct {
	Pickup      string  `json:"pickup"`
	Destination string  `json:"destination"`
	Fare        float64 `json:"fare"`
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
}

type Ride struct {
	ID           string       `json:"id"`
	Rider        Participant  `json:"rider"`
	Driver       *Participant `json:"driver,omitempty"`
	Status       Status       `json:"status"`
	Pickup       string       `json:"pickup"`
	Destination  string       `json:"destination"`
	Fare         float64      `json:"fare"`
	Distance     float64      `json:"distance"`
	Duration     float64      `json:"duration"`
	CancelReason string       `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (r Ride) RiderID() string { return r.Rider.ID }

// DriverID returns the bound driver, or "" while the ride is unclaimed.
func (r Ride) DriverID() string {
	if r.Driver == nil {
		return ""
	}
	return r.Driver.ID
}

// Mutation is the change CompareAndTransition applies when the expected
// status still holds.
type Mutation struct {
	To           Status
	Driver       *Participant
	CancelReason string
}
