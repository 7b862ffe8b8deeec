package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-lifecycle/internal/models"
)

// RideStore defines persistence operations for rides. CompareAndTransition
// is the only way a ride's status changes and must be atomic per ride id.
type RideStore interface {
	Create(ctx context.Context, r *models.Ride) error
	Get(ctx context.Context, id string) (models.Ride, error)
	CompareAndTransition(ctx context.Context, id string, expected models.Status, m models.Mutation) (models.Ride, error)
	ListByStatus(ctx context.Context, status models.Status) ([]models.Ride, error)
	ListByParticipant(ctx context.Context, actorID string, role models.Role) ([]models.Ride, error)
}

var ErrDuplicateID = errors.New("ride id already exists")

type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.Ride
	order []string // insertion order, breaks CreatedAt ties
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rides[r.ID]; exists {
		return ErrDuplicateID
	}
	now := m.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := cloneRide(*r)
	m.rides[r.ID] = &cp
	m.order = append(m.order, r.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return models.Ride{}, models.ErrNotFound
	}
	return cloneRide(*r), nil
}

func (m *MemoryStore) CompareAndTransition(_ context.Context, id string, expected models.Status, mut models.Mutation) (models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return models.Ride{}, models.ErrNotFound
	}
	if r.Status != expected {
		return models.Ride{}, models.ErrConflict
	}
	r.Status = mut.To
	if mut.Driver != nil && r.Driver == nil {
		d := *mut.Driver
		r.Driver = &d
	}
	if mut.CancelReason != "" {
		r.CancelReason = mut.CancelReason
	}
	r.UpdatedAt = m.now()
	return cloneRide(*r), nil
}

// ListByStatus returns matching rides oldest first.
func (m *MemoryStore) ListByStatus(_ context.Context, status models.Status) ([]models.Ride, error) {
	m.mu.RLock()
	out := make([]models.Ride, 0)
	for _, id := range m.order {
		if r := m.rides[id]; r.Status == status {
			out = append(out, cloneRide(*r))
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByParticipant returns the rides an actor requested (rider) or was bound
// to (driver), newest first.
func (m *MemoryStore) ListByParticipant(_ context.Context, actorID string, role models.Role) ([]models.Ride, error) {
	m.mu.RLock()
	out := make([]models.Ride, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		if r := m.rides[m.order[i]]; participates(*r, actorID, role) {
			out = append(out, cloneRide(*r))
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func participates(r models.Ride, actorID string, role models.Role) bool {
	switch role {
	case models.RoleRider:
		return r.Rider.ID == actorID
	case models.RoleDriver:
		return r.DriverID() == actorID
	}
	return false
}

func cloneRide(r models.Ride) models.Ride {
	if r.Driver != nil {
		d := *r.Driver
		r.Driver = &d
	}
	return r
}
