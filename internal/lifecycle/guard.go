package lifecycle

import (
	"fmt"

	"github.com/example/ride-lifecycle/internal/models"
)

// Authorize reports whether actor may perform action on ride. ride is nil for
// actions that do not target an existing ride. It never mutates anything.
func Authorize(actor models.Actor, action Action, ride *models.Ride) error {
	if actor.ID == "" || !actor.Role.Valid() {
		return fmt.Errorf("%w: unknown actor", models.ErrForbidden)
	}
	switch action {
	case ActionRequest:
		return requireRole(actor, models.RoleRider, "only riders can request rides")
	case ActionListAvailable:
		return requireRole(actor, models.RoleDriver, "only drivers can list available rides")
	case ActionAccept:
		return requireRole(actor, models.RoleDriver, "only drivers can accept rides")
	case ActionComplete:
		if err := requireRole(actor, models.RoleDriver, "only drivers can complete rides"); err != nil {
			return err
		}
		if ride == nil || ride.DriverID() != actor.ID {
			return fmt.Errorf("%w: not authorized to complete this ride", models.ErrForbidden)
		}
		return nil
	case ActionCancel:
		if err := requireRole(actor, models.RoleRider, "only riders can cancel rides"); err != nil {
			return err
		}
		if ride == nil || ride.RiderID() != actor.ID {
			return fmt.Errorf("%w: not authorized to cancel this ride", models.ErrForbidden)
		}
		return nil
	case ActionListMine:
		return nil
	case ActionView:
		if ride == nil {
			return fmt.Errorf("%w: not authorized to view this ride", models.ErrForbidden)
		}
		switch {
		case ride.RiderID() == actor.ID, ride.DriverID() == actor.ID:
			return nil
		case actor.Role == models.RoleDriver && ride.Status == models.StatusRequested:
			return nil
		}
		return fmt.Errorf("%w: not authorized to view this ride", models.ErrForbidden)
	}
	return fmt.Errorf("%w: unknown action %q", models.ErrForbidden, action)
}

func requireRole(actor models.Actor, want models.Role, msg string) error {
	if actor.Role != want {
		return fmt.Errorf("%w: %s", models.ErrForbidden, msg)
	}
	return nil
}
