package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ride-lifecycle/internal/models"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rideResponse struct {
	Message string      `json:"message"`
	Ride    models.Ride `json:"ride"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeRideError maps the ride error taxonomy onto stable status codes.
func (s *Server) writeRideError(w http.ResponseWriter, r *http.Request, err error) {
	var te *models.TransitionError
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Ride not found")
	case errors.Is(err, models.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &te):
		writeJSON(w, http.StatusBadRequest, struct {
			errorResponse
			Status models.Status `json:"status"`
		}{errorResponse{Code: "invalid_transition", Message: capitalize(te.Reason)}, te.Current})
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "Ride is no longer available")
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		s.logger.Error("request failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
