// Package ingest exposes the HTTP ingestion gateways and read-side query
// endpoints. Two write entry points exist: the automated collar gateway and
// the companion attestation gateway. Both require a bearer token.
package ingest

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"herdcore/internal/core"
	"herdcore/pkg/domain"
)

// Handler routes ingestion and query requests to the service layer.
type Handler struct {
	service *core.Service
	tokens  []string
	logger  zerolog.Logger
}

// NewHandler constructs the gateway handler. tokens lists the accepted bearer
// credentials; an empty list rejects every request.
func NewHandler(service *core.Service, tokens []string, logger zerolog.Logger) *Handler {
	return &Handler{service: service, tokens: tokens, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && path == "/api/v1/collar/readings":
		h.handleDeviceReading(w, r)
	case r.Method == http.MethodPost && path == "/api/v1/controls":
		h.handlePromote(w, r)
	case r.Method == http.MethodPost && path == "/api/v1/controls/manual":
		h.handleManual(w, r)
	case r.Method == http.MethodGet && path == "/api/v1/controls/current":
		h.handleCurrentShift(w, r)
	case r.Method == http.MethodGet && path == "/api/v1/controls":
		h.handleControlsForDate(w, r)
	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/api/v1/controls/"):
		h.handleRevise(w, r, strings.TrimPrefix(path, "/api/v1/controls/"))
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v1/animals/") && strings.HasSuffix(path, "/latest"):
		remainder := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/animals/"), "/latest")
		h.handleLatest(w, r, remainder)
	case path == "/api/v1/collar/readings" || path == "/api/v1/controls" || path == "/api/v1/controls/manual":
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := []byte(strings.TrimPrefix(header, prefix))
	ok := false
	for _, token := range h.tokens {
		if subtle.ConstantTimeCompare(presented, []byte(token)) == 1 {
			ok = true
		}
	}
	return ok
}

type deviceReadingRequest struct {
	CollarID     *int64   `json:"collar_id"`
	DisplayName  string   `json:"display_name"`
	NombreVaca   string   `json:"nombre_vaca"` // legacy firmware field
	RadioAddress *string  `json:"radio_address"`
	MacCollar    *string  `json:"mac_collar"` // legacy firmware field
	Temperature  *float64 `json:"temperature"`
	HeartRate    *int     `json:"heart_rate"`
	Pulsaciones  *int     `json:"pulsaciones"` // legacy firmware field
	ObservedAt   string   `json:"observed_at"` // RFC 3339, optional
	Source       string   `json:"source"`      // sensor (default) or mobile
}

type controlPayload struct {
	ID           string             `json:"id"`
	AnimalID     string             `json:"animal_id"`
	Date         domain.CivilDate   `json:"date"`
	Shift        domain.Shift       `json:"shift"`
	Temperature  float64            `json:"temperature"`
	HeartRate    int                `json:"heart_rate"`
	HealthState  domain.HealthState `json:"health_state"`
	Observations string             `json:"observations,omitempty"`
	ActionTaken  string             `json:"action_taken,omitempty"`
	ReadingID    *string            `json:"reading_id,omitempty"`
	RecordedBy   *string            `json:"recorded_by,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func controlToPayload(c core.Control) controlPayload {
	return controlPayload{
		ID:           c.ID,
		AnimalID:     c.AnimalID,
		Date:         c.Date,
		Shift:        c.Shift,
		Temperature:  c.Temperature,
		HeartRate:    c.HeartRate,
		HealthState:  c.HealthState,
		Observations: c.Observations,
		ActionTaken:  c.ActionTaken,
		ReadingID:    c.ReadingID,
		RecordedBy:   c.RecordingUserID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (h *Handler) handleDeviceReading(w http.ResponseWriter, r *http.Request) {
	var req deviceReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.CollarID == nil {
		writeError(w, http.StatusBadRequest, "invalid collar_id: required")
		return
	}
	if req.Temperature == nil {
		writeError(w, http.StatusBadRequest, "invalid temperature: required")
		return
	}

	in := core.DeviceReadingInput{
		CollarID:     *req.CollarID,
		DisplayName:  req.DisplayName,
		RadioAddress: req.RadioAddress,
		Temperature:  *req.Temperature,
		HeartRate:    req.HeartRate,
	}
	if in.DisplayName == "" {
		in.DisplayName = req.NombreVaca
	}
	if in.RadioAddress == nil {
		in.RadioAddress = req.MacCollar
	}
	if in.HeartRate == nil {
		in.HeartRate = req.Pulsaciones
	}
	if req.ObservedAt != "" {
		at, err := time.Parse(time.RFC3339, req.ObservedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid observed_at: must be RFC 3339")
			return
		}
		in.ObservedAt = at
	}
	if req.Source != "" {
		source, err := domain.ParseSource(req.Source)
		if err != nil || source == domain.SourceManual {
			writeError(w, http.StatusBadRequest, "invalid source: must be sensor or mobile")
			return
		}
		in.Source = source
	}

	result, err := h.service.RecordDeviceReading(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.Info().
		Int64("collar_id", result.Animal.CollarID).
		Str("shift", string(result.Control.Shift)).
		Time("observed_at", result.Reading.OccurredAt).
		Bool("already_recorded", result.AlreadyRecorded).
		Msg("device reading ingested")

	status := http.StatusCreated
	if result.AlreadyRecorded {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"control":          controlToPayload(result.Control),
		"animal_name":      result.Animal.DisplayName,
		"collar_id":        result.Animal.CollarID,
		"temperature":      result.Control.Temperature,
		"heart_rate":       result.Control.HeartRate,
		"health_state":     result.Control.HealthState,
		"animal_created":   result.AnimalCreated,
		"already_recorded": result.AlreadyRecorded,
		"timestamp":        result.Reading.OccurredAt,
	})
}

type promoteRequest struct {
	Username     string `json:"username"`
	CollarID     *int64 `json:"collar_id"`
	ReadingID    string `json:"reading_id"`
	Observations string `json:"observations"`
}

func (h *Handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "invalid username: required")
		return
	}
	if req.CollarID == nil {
		writeError(w, http.StatusBadRequest, "invalid collar_id: required")
		return
	}

	result, err := h.service.PromoteReading(r.Context(), core.PromoteReadingInput{
		Username:     req.Username,
		CollarID:     *req.CollarID,
		ReadingID:    req.ReadingID,
		Observations: req.Observations,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.Info().
		Int64("collar_id", result.Animal.CollarID).
		Str("shift", string(result.Control.Shift)).
		Str("username", result.User.Username).
		Bool("already_recorded", result.AlreadyRecorded).
		Msg("reading promoted")

	status := http.StatusCreated
	if result.AlreadyRecorded {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"control":          controlToPayload(result.Control),
		"animal_name":      result.Animal.DisplayName,
		"collar_id":        result.Animal.CollarID,
		"already_recorded": result.AlreadyRecorded,
	})
}

type manualControlRequest struct {
	Username     string   `json:"username"`
	CollarID     *int64   `json:"collar_id"`
	Shift        string   `json:"shift"`
	Temperature  *float64 `json:"temperature"`
	HeartRate    *int     `json:"heart_rate"`
	Pulsaciones  *int     `json:"pulsaciones"` // legacy app field
	Observations string   `json:"observations"`
	ActionTaken  string   `json:"action_taken"`
}

func (h *Handler) handleManual(w http.ResponseWriter, r *http.Request) {
	var req manualControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "invalid username: required")
		return
	}
	if req.CollarID == nil {
		writeError(w, http.StatusBadRequest, "invalid collar_id: required")
		return
	}
	if req.Temperature == nil {
		writeError(w, http.StatusBadRequest, "invalid temperature: required")
		return
	}

	in := core.ManualControlInput{
		Username:     req.Username,
		CollarID:     *req.CollarID,
		Temperature:  *req.Temperature,
		HeartRate:    req.HeartRate,
		Observations: req.Observations,
		ActionTaken:  req.ActionTaken,
	}
	if in.HeartRate == nil {
		in.HeartRate = req.Pulsaciones
	}
	if req.Shift != "" {
		shift, err := domain.ParseShift(req.Shift)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		in.Shift = shift
	}

	result, err := h.service.RecordManualControl(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.Info().
		Int64("collar_id", result.Animal.CollarID).
		Str("shift", string(result.Control.Shift)).
		Str("username", result.User.Username).
		Bool("already_recorded", result.AlreadyRecorded).
		Msg("manual control recorded")

	status := http.StatusCreated
	if result.AlreadyRecorded {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"control":          controlToPayload(result.Control),
		"animal_name":      result.Animal.DisplayName,
		"collar_id":        result.Animal.CollarID,
		"health_state":     result.Control.HealthState,
		"already_recorded": result.AlreadyRecorded,
	})
}

type reviseRequest struct {
	Username     string   `json:"username"`
	Observations *string  `json:"observations"`
	ActionTaken  *string  `json:"action_taken"`
	Temperature  *float64 `json:"temperature"`
	HeartRate    *int     `json:"heart_rate"`
}

func (h *Handler) handleRevise(w http.ResponseWriter, r *http.Request, controlID string) {
	if controlID == "" || strings.Contains(controlID, "/") {
		http.NotFound(w, r)
		return
	}
	var req reviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "invalid username: required")
		return
	}
	user, err := h.service.UserByUsername(r.Context(), req.Username)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	control, err := h.service.ReviseControl(r.Context(), controlID, user.ID, core.ControlRevision{
		Observations: req.Observations,
		ActionTaken:  req.ActionTaken,
		Temperature:  req.Temperature,
		HeartRate:    req.HeartRate,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.Info().
		Str("control_id", control.ID).
		Str("username", user.Username).
		Msg("control revised")

	writeJSON(w, http.StatusOK, map[string]any{"control": controlToPayload(control)})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request, remainder string) {
	collarID, err := strconv.ParseInt(remainder, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collar id")
		return
	}
	animal, reading, err := h.service.LatestReading(r.Context(), collarID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"animal":  animal,
		"reading": reading,
	})
}

func (h *Handler) handleControlsForDate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dateText := q.Get("date")
	if dateText == "" {
		writeError(w, http.StatusBadRequest, "invalid date: required")
		return
	}
	date, err := domain.ParseCivilDate(dateText)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date: must be YYYY-MM-DD")
		return
	}
	var collarID *int64
	if raw := q.Get("collar_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid collar_id")
			return
		}
		collarID = &id
	}
	controls, err := h.service.ControlsForDate(r.Context(), date, collarID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	payloads := make([]controlPayload, 0, len(controls))
	for _, c := range controls {
		payloads = append(payloads, controlToPayload(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "controls": payloads})
}

func (h *Handler) handleCurrentShift(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("collar_id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid collar_id: required")
		return
	}
	collarID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collar_id")
		return
	}
	control, found, err := h.service.CurrentShiftControl(r.Context(), collarID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"recorded": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recorded": true, "control": controlToPayload(control)})
}

// writeServiceError maps service-layer failures onto the HTTP taxonomy:
// validation 400, missing references 404, ownership 403, everything else 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation domain.ValidationError
	var notFound domain.ErrNotFound
	var notOwner core.ErrNotRecordingUser
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &notOwner):
		writeError(w, http.StatusForbidden, notOwner.Error())
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("storage failure")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
