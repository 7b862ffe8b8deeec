package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-lifecycle/internal/auth"
	"github.com/example/ride-lifecycle/internal/lifecycle"
	"github.com/example/ride-lifecycle/internal/logging"
	"github.com/example/ride-lifecycle/internal/models"
	"github.com/example/ride-lifecycle/internal/notify"
	"github.com/example/ride-lifecycle/internal/storage"
)

type testEnv struct {
	srv      *Server
	hub      *notify.Hub
	verifier *auth.Verifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.Discard()
	hub := notify.NewHub(8, logger)
	svc := lifecycle.NewService(storage.NewMemoryStore(), notify.NewFanout(logger, time.Second, hub), logger)
	v := auth.NewVerifier("test-secret")
	return &testEnv{
		srv:      NewServer(Deps{Rides: svc, Hub: hub, Verifier: v, Logger: logger}),
		hub:      hub,
		verifier: v,
	}
}

func (e *testEnv) token(t *testing.T, a models.Actor) string {
	t.Helper()
	tok, err := e.verifier.Issue(a, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, a *models.Actor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if a != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, *a))
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

var (
	rider  = models.Actor{ID: "rider-1", Role: models.RoleRider, Name: "Ana", Phone: "555-0100"}
	driver = models.Actor{ID: "driver-1", Role: models.RoleDriver, Name: "Ben", Phone: "555-0200"}
	other  = models.Actor{ID: "driver-2", Role: models.RoleDriver, Name: "Cy"}
)

const rideBody = `{"pickup":{"address":"Airport"},"destination":"Downtown","fare":25,"distance":18,"duration":30}`

func decodeRide(t *testing.T, rec *httptest.ResponseRecorder) rideResponse {
	t.Helper()
	var out rideResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestRideFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, &rider, http.MethodPost, "/api/v1/rides", rideBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("request: %d %s", rec.Code, rec.Body)
	}
	created := decodeRide(t, rec)
	if created.Message != "Ride requested successfully" || created.Ride.Pickup != "Airport" || created.Ride.Status != models.StatusRequested {
		t.Fatalf("unexpected response %+v", created)
	}
	id := created.Ride.ID

	rec = e.do(t, &driver, http.MethodGet, "/api/v1/rides/available", "")
	var avail []models.Ride
	_ = json.Unmarshal(rec.Body.Bytes(), &avail)
	if rec.Code != http.StatusOK || len(avail) != 1 || avail[0].ID != id {
		t.Fatalf("available: %d %s", rec.Code, rec.Body)
	}

	rec = e.do(t, &driver, http.MethodPost, "/api/v1/rides/"+id+"/accept", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rec.Code, rec.Body)
	}
	accepted := decodeRide(t, rec)
	if accepted.Message != "Ride accepted successfully" || accepted.Ride.Driver == nil || accepted.Ride.Driver.Name != "Ben" {
		t.Fatalf("unexpected accept response %+v", accepted)
	}

	rec = e.do(t, &other, http.MethodPost, "/api/v1/rides/"+id+"/accept", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("second accept: expected 400, got %d %s", rec.Code, rec.Body)
	}
	if er := decodeError(t, rec); er.Code != "invalid_transition" || er.Message != "Ride is no longer available" {
		t.Fatalf("unexpected error body %+v", er)
	}

	rec = e.do(t, &other, http.MethodPost, "/api/v1/rides/"+id+"/complete", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("other driver complete: expected 403, got %d", rec.Code)
	}

	rec = e.do(t, &driver, http.MethodPost, "/api/v1/rides/"+id+"/complete", "")
	if rec.Code != http.StatusOK || decodeRide(t, rec).Ride.Status != models.StatusCompleted {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body)
	}

	rec = e.do(t, &rider, http.MethodGet, "/api/v1/rides/me", "")
	var mine []models.Ride
	_ = json.Unmarshal(rec.Body.Bytes(), &mine)
	if rec.Code != http.StatusOK || len(mine) != 1 || mine[0].Status != models.StatusCompleted {
		t.Fatalf("my rides: %d %s", rec.Code, rec.Body)
	}

	rec = e.do(t, &rider, http.MethodGet, "/api/v1/rides/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body)
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(t, nil, http.MethodGet, "/api/v1/rides/me", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rides/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}

	if rec := e.do(t, &driver, http.MethodPost, "/api/v1/rides", rideBody); rec.Code != http.StatusForbidden {
		t.Fatalf("driver request: expected 403, got %d", rec.Code)
	}
	if rec := e.do(t, &rider, http.MethodPost, "/api/v1/rides", `{"pickup":"A","destination":"B"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fare: expected 400, got %d", rec.Code)
	} else if er := decodeError(t, rec); er.Code != "validation_error" {
		t.Fatalf("unexpected code %s", er.Code)
	}
	if rec := e.do(t, &rider, http.MethodPost, "/api/v1/rides", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", rec.Code)
	}
	if rec := e.do(t, &driver, http.MethodPost, "/api/v1/rides/missing/accept", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing ride: expected 404, got %d", rec.Code)
	}
	if rec := e.do(t, &rider, http.MethodGet, "/api/v1/rides/available", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("rider list available: expected 403, got %d", rec.Code)
	}
}

func TestCancelOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	id := decodeRide(t, e.do(t, &rider, http.MethodPost, "/api/v1/rides", rideBody)).Ride.ID

	rec := e.do(t, &rider, http.MethodPost, "/api/v1/rides/"+id+"/cancel", `{"reason":"plans changed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body)
	}
	got := decodeRide(t, rec)
	if got.Message != "Ride cancelled successfully" || got.Ride.Status != models.StatusCancelled || got.Ride.CancelReason != "plans changed" {
		t.Fatalf("unexpected cancel response %+v", got)
	}

	rec = e.do(t, &rider, http.MethodPost, "/api/v1/rides/"+id+"/cancel", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("second cancel: expected 400, got %d", rec.Code)
	}
	if er := decodeError(t, rec); er.Code != "invalid_transition" {
		t.Fatalf("unexpected error %+v", er)
	}
}

func TestWebSocketReceivesRideRequests(t *testing.T) {
	e := newTestEnv(t)
	ts := httptest.NewServer(e.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + e.token(t, driver)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Subscribers(notify.TopicDrivers) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("driver not subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := e.do(t, &rider, http.MethodPost, "/api/v1/rides", rideBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("request: %d", rec.Code)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var ev struct {
		Type string `json:"type"`
		Ride struct {
			ID     string `json:"id"`
			Pickup string `json:"pickup"`
		} `json:"ride"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "ride-requested" || ev.Ride.Pickup != "Airport" {
		t.Fatalf("unexpected event %s", msg)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	ts := httptest.NewServer(e.srv)
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/healthz", "/ready"} {
		if rec := e.do(t, nil, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, rec.Code)
		}
	}
}
