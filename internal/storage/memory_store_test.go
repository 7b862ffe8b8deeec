package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-lifecycle/internal/models"
)

func newRide(id, riderID string) *models.Ride {
	return &models.Ride{
		ID:          id,
		Rider:       models.Participant{ID: riderID, Name: "rider " + riderID},
		Status:      models.StatusRequested,
		Pickup:      "A",
		Destination: "B",
		Fare:        10,
	}
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestMemoryStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := newRide("r1", "u1")
	if err := s.Create(ctx, r); err != nil {
		t.Fatal(err)
	}
	if r.CreatedAt.IsZero() || !r.CreatedAt.Equal(r.UpdatedAt) {
		t.Fatalf("timestamps not set: %+v", r)
	}
	if err := s.Create(ctx, newRide("r1", "u1")); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	got, err := s.Get(ctx, "r1")
	if err != nil || got.ID != "r1" || got.Rider.ID != "u1" {
		t.Fatalf("unexpected get %+v err=%v", got, err)
	}
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreCompareAndTransition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, newRide("r1", "u1"))

	d := models.Participant{ID: "d1", Name: "Dee"}
	got, err := s.CompareAndTransition(ctx, "r1", models.StatusRequested, models.Mutation{To: models.StatusAccepted, Driver: &d})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusAccepted || got.DriverID() != "d1" {
		t.Fatalf("unexpected ride %+v", got)
	}

	if _, err := s.CompareAndTransition(ctx, "r1", models.StatusRequested, models.Mutation{To: models.StatusAccepted}); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("stale expected status: want ErrConflict, got %v", err)
	}
	if _, err := s.CompareAndTransition(ctx, "nope", models.StatusRequested, models.Mutation{To: models.StatusAccepted}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	// A bound driver is never replaced.
	other := models.Participant{ID: "d2"}
	got, err = s.CompareAndTransition(ctx, "r1", models.StatusAccepted, models.Mutation{To: models.StatusCompleted, Driver: &other})
	if err != nil {
		t.Fatal(err)
	}
	if got.DriverID() != "d1" || got.Status != models.StatusCompleted {
		t.Fatalf("unexpected ride %+v", got)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, newRide("r1", "u1"))
	d := models.Participant{ID: "d1"}
	_, _ = s.CompareAndTransition(ctx, "r1", models.StatusRequested, models.Mutation{To: models.StatusAccepted, Driver: &d})

	got, _ := s.Get(ctx, "r1")
	got.Status = models.StatusCancelled
	got.Driver.ID = "mallory"
	d.ID = "mallory"

	again, _ := s.Get(ctx, "r1")
	if again.Status != models.StatusAccepted || again.DriverID() != "d1" {
		t.Fatalf("store state leaked through a returned value: %+v", again)
	}
}

func TestMemoryStoreListOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.now = fixedClock()
	for _, id := range []string{"r1", "r2", "r3"} {
		_ = s.Create(ctx, newRide(id, "u1"))
	}
	_ = s.Create(ctx, newRide("r4", "u2"))
	_, _ = s.CompareAndTransition(ctx, "r2", models.StatusRequested, models.Mutation{To: models.StatusCancelled})

	open, _ := s.ListByStatus(ctx, models.StatusRequested)
	if ids(open) != "r1,r3,r4" {
		t.Fatalf("expected oldest first, got %s", ids(open))
	}
	mine, _ := s.ListByParticipant(ctx, "u1", models.RoleRider)
	if ids(mine) != "r3,r2,r1" {
		t.Fatalf("expected newest first, got %s", ids(mine))
	}
	none, _ := s.ListByParticipant(ctx, "u1", models.RoleDriver)
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", none)
	}
}

func TestMemoryStoreConcurrentCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Create(ctx, newRide("r1", "u1"))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CompareAndTransition(ctx, "r1", models.StatusRequested, models.Mutation{To: models.StatusAccepted, Driver: &models.Participant{ID: "d"}})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected one successful transition, got %d", wins)
	}
}

func ids(rs []models.Ride) string {
	out := ""
	for i, r := range rs {
		if i > 0 {
			out += ","
		}
		out += r.ID
	}
	return out
}
