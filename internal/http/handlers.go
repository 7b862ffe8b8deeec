package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/ride-lifecycle/internal/models"
)

// address accepts either "Main St 1" or {"address": "Main St 1"}.
type address string

func (a *address) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*a = address(obj.Address)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*a = address(s)
	return nil
}

type requestRideBody struct {
	Pickup      address  `json:"pickup"`
	Destination address  `json:"destination"`
	Fare        *float64 `json:"fare"`
	Distance    *float64 `json:"distance"`
	Duration    *float64 `json:"duration"`
}

func (b requestRideBody) toRequest() (models.RideRequest, error) {
	var missing []string
	if b.Fare == nil {
		missing = append(missing, "fare")
	}
	if b.Distance == nil {
		missing = append(missing, "distance")
	}
	if b.Duration == nil {
		missing = append(missing, "duration")
	}
	if len(missing) > 0 {
		return models.RideRequest{}, &models.ValidationError{Fields: missing}
	}
	return models.RideRequest{
		Pickup:      string(b.Pickup),
		Destination: string(b.Destination),
		Fare:        *b.Fare,
		Distance:    *b.Distance,
		Duration:    *b.Duration,
	}, nil
}

type cancelRideBody struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var body requestRideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid json")
		return
	}
	req, err := body.toRequest()
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	ride, err := s.rides.RequestRide(r.Context(), actor, req)
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rideResponse{Message: "Ride requested successfully", Ride: ride})
}

func (s *Server) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	rides, err := s.rides.ListAvailableRides(r.Context(), actor)
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	rides, err := s.rides.ListMyRides(r.Context(), actor)
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rides)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	ride, err := s.rides.GetRide(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	ride, err := s.rides.AcceptRide(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideResponse{Message: "Ride accepted successfully", Ride: ride})
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	ride, err := s.rides.CompleteRide(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideResponse{Message: "Ride completed successfully", Ride: ride})
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var body cancelRideBody
	// The body is optional.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid json")
		return
	}
	ride, err := s.rides.CancelRide(r.Context(), actor, mux.Vars(r)["id"], body.Reason)
	if err != nil {
		s.writeRideError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideResponse{Message: "Ride cancelled successfully", Ride: ride})
}
