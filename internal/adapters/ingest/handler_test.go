package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"herdcore/internal/core"
	"herdcore/internal/infra/persistence/memory"
	"herdcore/pkg/domain"
)

const testToken = "collar-secret"

func newTestHandler(t *testing.T) (*Handler, *core.Service) {
	t.Helper()
	loc := time.FixedZone("farm", -5*3600)
	now := time.Date(2026, time.March, 14, 9, 0, 0, 0, loc)
	store := memory.NewStore(loc)
	store.SetNowFunc(func() time.Time { return now })
	service := core.NewService(store, loc, core.WithNowFunc(func() time.Time { return now }))
	return NewHandler(service, []string{testToken}, zerolog.Nop()), service
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestDeviceGatewayAuth(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/collar/readings", "", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/collar/readings", "wrong", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status %d", rec.Code)
	}
}

func TestDeviceGatewayIngestAndDuplicate(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/collar/readings", testToken, map[string]any{
		"collar_id":   7,
		"nombre_vaca": "Bessie",
		"mac_collar":  "AA:BB:CC:DD:EE:01",
		"temperature": 38.3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first post: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["animal_name"] != "Bessie" {
		t.Fatalf("animal_name = %v", body["animal_name"])
	}
	if body["animal_created"] != true {
		t.Fatal("expected animal_created true")
	}
	if body["already_recorded"] != false {
		t.Fatal("expected already_recorded false")
	}
	if body["health_state"] != "normal" {
		t.Fatalf("health_state = %v", body["health_state"])
	}
	if hr, _ := body["heart_rate"].(float64); int(hr) != 53 {
		t.Fatalf("heart_rate = %v, want 53", body["heart_rate"])
	}

	// Same shift, hotter reading: duplicate outcome, original untouched.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/collar/readings", testToken, map[string]any{
		"collar_id":   7,
		"temperature": 41.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate post: status %d body %s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	if body["already_recorded"] != true {
		t.Fatal("expected already_recorded true")
	}
	if temp, _ := body["temperature"].(float64); temp != 38.3 {
		t.Fatalf("temperature = %v, want original 38.3", body["temperature"])
	}
}

func TestDeviceGatewayValidation(t *testing.T) {
	handler, _ := newTestHandler(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing collar", map[string]any{"temperature": 38.0}},
		{"missing temperature", map[string]any{"collar_id": 7}},
		{"out of range temperature", map[string]any{"collar_id": 7, "nombre_vaca": "B", "mac_collar": "x", "temperature": 55.0}},
		{"bad timestamp", map[string]any{"collar_id": 7, "nombre_vaca": "B", "mac_collar": "x", "temperature": 38.0, "observed_at": "yesterday"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/api/v1/collar/readings", testToken, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
			}
			if _, ok := decodeBody(t, rec)["error"]; !ok {
				t.Fatal("expected error field")
			}
		})
	}
}

func seedCollar(t *testing.T, handler *Handler, collarID int64, temperature float64) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/collar/readings", testToken, map[string]any{
		"collar_id":     collarID,
		"display_name":  "Bessie",
		"radio_address": "AA:BB:CC:DD:EE:01",
		"temperature":   temperature,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed collar: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestCompanionGatewayPromoteAndErrors(t *testing.T) {
	handler, service := newTestHandler(t)
	ctx := context.Background()
	if _, err := service.RegisterUser(ctx, domain.User{Username: "ana", Active: true}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	seedCollar(t, handler, 7, 38.3)

	// Morning slot already holds the automated control.
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/controls", testToken, map[string]any{
		"username":  "ana",
		"collar_id": 7,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("promote: status %d body %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["already_recorded"] != true {
		t.Fatal("expected success-shaped duplicate")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/controls", testToken, map[string]any{
		"username":  "ghost",
		"collar_id": 7,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user: status %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/controls", testToken, map[string]any{
		"username":  "ana",
		"collar_id": 99,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown animal: status %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/controls", testToken, map[string]any{
		"collar_id": 7,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing username: status %d", rec.Code)
	}
}

func TestDeviceGatewaySourceField(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/collar/readings", testToken, map[string]any{
		"collar_id":     7,
		"display_name":  "Bessie",
		"radio_address": "AA:BB:CC:DD:EE:01",
		"temperature":   38.3,
		"source":        "mobile",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mobile submission: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/animals/7/latest", testToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("latest: status %d", rec.Code)
	}
	reading, _ := decodeBody(t, rec)["reading"].(map[string]any)
	if reading["source"] != "mobile" {
		t.Fatalf("source = %v, want mobile", reading["source"])
	}

	// Manual entries have their own endpoint; the device gateway refuses them.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/collar/readings", testToken, map[string]any{
		"collar_id":   7,
		"temperature": 38.3,
		"source":      "manual",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("manual source: status %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/collar/readings", testToken, map[string]any{
		"collar_id":   7,
		"temperature": 38.3,
		"source":      "telegraph",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown source: status %d", rec.Code)
	}
}

func TestManualControlEndpoint(t *testing.T) {
	handler, service := newTestHandler(t)
	ctx := context.Background()
	if _, err := service.RegisterUser(ctx, domain.User{Username: "ana", Active: true}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	seedCollar(t, handler, 7, 38.3)

	// Afternoon slot is free; the legacy pulsaciones alias carries the rate.
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/controls/manual", testToken, map[string]any{
		"username":     "ana",
		"collar_id":    7,
		"shift":        "afternoon",
		"temperature":  39.5,
		"pulsaciones":  72,
		"observations": "taken in the pen",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("manual entry: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["health_state"] != "alert" {
		t.Fatalf("health_state = %v, want alert for 39.5", body["health_state"])
	}
	control, _ := body["control"].(map[string]any)
	if control["shift"] != "afternoon" {
		t.Fatalf("shift = %v", control["shift"])
	}
	if hr, _ := control["heart_rate"].(float64); int(hr) != 72 {
		t.Fatalf("heart_rate = %v, want the supplied 72", control["heart_rate"])
	}
	if control["recorded_by"] == nil {
		t.Fatal("manual control must carry the entering user")
	}

	// Repeat lands on the now-taken afternoon slot.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/controls/manual", testToken, map[string]any{
		"username":    "ana",
		"collar_id":   7,
		"shift":       "afternoon",
		"temperature": 41.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate manual entry: status %d body %s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	if body["already_recorded"] != true {
		t.Fatal("expected success-shaped duplicate")
	}
	control, _ = body["control"].(map[string]any)
	if temp, _ := control["temperature"].(float64); temp != 39.5 {
		t.Fatalf("temperature = %v, want original 39.5", control["temperature"])
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/controls/manual", testToken, map[string]any{
		"username":    "ana",
		"collar_id":   7,
		"shift":       "siesta",
		"temperature": 38.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown shift: status %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/controls/manual", testToken, map[string]any{
		"username":    "ana",
		"collar_id":   99,
		"temperature": 38.0,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown animal: status %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/controls/manual", testToken, map[string]any{
		"username":  "ana",
		"collar_id": 7,
		"shift":     "evening",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing temperature: status %d", rec.Code)
	}
}

func TestRevisionEndpoint(t *testing.T) {
	handler, service := newTestHandler(t)
	ctx := context.Background()
	if _, err := service.RegisterUser(ctx, domain.User{Username: "ana", Active: true}); err != nil {
		t.Fatalf("seed ana: %v", err)
	}
	if _, err := service.RegisterUser(ctx, domain.User{Username: "bo", Active: true}); err != nil {
		t.Fatalf("seed bo: %v", err)
	}
	// Seed a bare afternoon reading so the attestation owns the slot.
	loc := service.Location()
	var readingID string
	if _, err := service.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		macAddr := "AA:BB:CC:DD:EE:01"
		animal, _, err := tx.ResolveAnimal(7, "Bessie", &macAddr)
		if err != nil {
			return err
		}
		sample, err := domain.NewSample(39.6, nil)
		if err != nil {
			return err
		}
		reading, err := tx.CreateReading(domain.Reading{
			AnimalID:   animal.ID,
			Sample:     sample,
			OccurredAt: time.Date(2026, time.March, 14, 14, 0, 0, 0, loc),
			Source:     domain.SourceSensor,
		})
		readingID = reading.ID
		return err
	}); err != nil {
		t.Fatalf("seed reading: %v", err)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/controls", testToken, map[string]any{
		"username":   "ana",
		"collar_id":  7,
		"reading_id": readingID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("promote: status %d body %s", rec.Code, rec.Body.String())
	}
	controlID := decodeBody(t, rec)["control"].(map[string]any)["id"].(string)

	// Someone other than the recording user is refused.
	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/controls/"+controlID, testToken, map[string]any{
		"username":     "bo",
		"observations": "hijack",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong user revision: status %d body %s", rec.Code, rec.Body.String())
	}

	// The recording user revises the temperature; health state follows.
	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/controls/"+controlID, testToken, map[string]any{
		"username":     "ana",
		"temperature":  40.5,
		"action_taken": "vet called",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("revision: status %d body %s", rec.Code, rec.Body.String())
	}
	control := decodeBody(t, rec)["control"].(map[string]any)
	if control["health_state"] != "critical" {
		t.Fatalf("health_state = %v, want critical", control["health_state"])
	}
	if control["action_taken"] != "vet called" {
		t.Fatalf("action_taken = %v", control["action_taken"])
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/controls/missing", testToken, map[string]any{
		"username":     "ana",
		"observations": "note",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing control: status %d", rec.Code)
	}
}

func TestReadSideEndpoints(t *testing.T) {
	handler, _ := newTestHandler(t)
	seedCollar(t, handler, 7, 38.3)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/animals/7/latest", testToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("latest: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["animal"] == nil || body["reading"] == nil {
		t.Fatalf("latest body = %v", body)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/controls?date=2026-03-14&collar_id=7", testToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("controls: status %d body %s", rec.Code, rec.Body.String())
	}
	controls := decodeBody(t, rec)["controls"].([]any)
	if len(controls) != 1 {
		t.Fatalf("controls = %d, want 1", len(controls))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/controls?collar_id=7", testToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing date: status %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/controls/current?collar_id=7", testToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current: status %d body %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["recorded"] != true {
		t.Fatal("expected recorded current-shift control")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/animals/99/latest", testToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown collar latest: status %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/animals/%s/latest", "abc"), testToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed collar: status %d", rec.Code)
	}
}
