// Package monitors serves the monitor CRUD, execute and acknowledge endpoints.
package monitors

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/storage"
)

// maxBodySize bounds monitor and acknowledge request bodies.
const maxBodySize = 1 << 20

// Runner executes monitors and mutates their alerts. *alerting.Runner implements it.
type Runner interface {
	RunMonitor(ctx context.Context, monitor *models.Monitor, periodStart, periodEnd time.Time, dryrun bool) *models.MonitorRunResult
	Acknowledge(ctx context.Context, monitorID string, alertIDs []string) (*alerting.AcknowledgeResult, error)
	MoveAlerts(ctx context.Context, monitorID string, monitor *models.Monitor) (int, error)
}

// Handler handles monitor endpoints.
type Handler struct {
	monitors       storage.MonitorRepository
	runner         Runner
	limits         alerting.Limits
	executeTimeout time.Duration
	now            func() time.Time
}

// NewHandler creates a monitor handler. executeTimeout bounds a single execute call.
func NewHandler(monitors storage.MonitorRepository, runner Runner, limits alerting.Limits, executeTimeout time.Duration) *Handler {
	if executeTimeout <= 0 {
		executeTimeout = time.Minute
	}
	return &Handler{
		monitors:       monitors,
		runner:         runner,
		limits:         limits,
		executeTimeout: executeTimeout,
		now:            time.Now,
	}
}

// DeleteResponse is returned when a monitor is deleted.
type DeleteResponse struct {
	ID          string `json:"id"`
	AlertsMoved int    `json:"alerts_moved"`
}

// AcknowledgeRequest lists the alerts to acknowledge.
type AcknowledgeRequest struct {
	Alerts []string `json:"alerts"`
}

func decodeMonitor(w http.ResponseWriter, r *http.Request) (*models.Monitor, bool) {
	var m models.Monitor
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	return &m, true
}

// validate writes a validation error and returns false when m is not acceptable.
func (h *Handler) validate(w http.ResponseWriter, m *models.Monitor) bool {
	if err := h.limits.Validate(m); err != nil {
		var cfgErr *models.ConfigurationError
		if errors.As(err, &cfgErr) {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, cfgErr.Msg)
		} else {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		}
		return false
	}
	return true
}

// load returns the monitor named by the {id} URL parameter, writing 404 when missing.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.Monitor, bool) {
	id := chi.URLParam(r, "id")
	m, err := h.monitors.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get monitor %s error: %v", id, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, false
	}
	if m == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "monitor not found")
		return nil, false
	}
	return m, true
}

// List returns all monitors, optionally filtered by ?enabled= and ?type=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var enabled *bool
	if v := q.Get("enabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "enabled must be true or false")
			return
		}
		enabled = &b
	}
	monitorType := models.MonitorType(q.Get("type"))

	all, err := h.monitors.List(r.Context())
	if err != nil {
		log.Printf("list monitors error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	resp := make([]*models.Monitor, 0, len(all))
	for _, m := range all {
		if enabled != nil && m.Enabled != *enabled {
			continue
		}
		if monitorType != "" && m.MonitorType != monitorType {
			continue
		}
		resp = append(resp, m)
	}
	jsonOK(w, resp)
}

// Create stores a new monitor. A caller-chosen id must not be in use.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMonitor(w, r)
	if !ok {
		return
	}
	m.Version = 0
	m.Normalize(h.now())
	if !h.validate(w, m) {
		return
	}

	ctx := r.Context()
	if m.ID != "" {
		existing, err := h.monitors.GetByID(ctx, m.ID)
		if err != nil {
			log.Printf("create monitor error: lookup %s: %v", m.ID, err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		if existing != nil {
			jsonError(w, http.StatusConflict, errCodeConflict, "monitor id already exists")
			return
		}
	}

	if err := h.monitors.Create(ctx, m); err != nil {
		log.Printf("create monitor error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	log.Printf("monitor %s created", m)
	jsonCreated(w, m)
}

// Get returns a monitor by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonOK(w, m)
}

// Update replaces a monitor. A non-zero version in the body must match the stored one.
// Alerts of triggers that no longer exist are moved to history.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	m, ok := decodeMonitor(w, r)
	if !ok {
		return
	}

	if m.Version != 0 && m.Version != existing.Version {
		jsonError(w, http.StatusConflict, errCodeConflict, "monitor was modified, reload and retry")
		return
	}
	m.ID = existing.ID
	m.Version = existing.Version
	if m.Enabled && existing.Enabled && existing.EnabledTime != nil {
		m.EnabledTime = existing.EnabledTime
	}
	m.Normalize(h.now())
	if !h.validate(w, m) {
		return
	}

	ctx := r.Context()
	if err := h.monitors.Update(ctx, m); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			jsonError(w, http.StatusConflict, errCodeConflict, "monitor was modified, reload and retry")
			return
		}
		log.Printf("update monitor %s error: %v", m.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	if _, err := h.runner.MoveAlerts(ctx, m.ID, m); err != nil {
		log.Printf("monitor %s: error moving alerts of removed triggers: %v", m, err)
	}
	jsonOK(w, m)
}

// Delete removes a monitor and moves all its alerts to history.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.monitors.Delete(ctx, m.ID); err != nil {
		log.Printf("delete monitor %s error: %v", m.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	moved, err := h.runner.MoveAlerts(ctx, m.ID, nil)
	if err != nil {
		log.Printf("monitor %s: error moving alerts of deleted monitor: %v", m, err)
	}
	log.Printf("monitor %s deleted", m)
	jsonOK(w, DeleteResponse{ID: m.ID, AlertsMoved: moved})
}

// period resolves the run period from ?period_end=, defaulting to now.
func (h *Handler) period(w http.ResponseWriter, r *http.Request, m *models.Monitor) (time.Time, time.Time, bool) {
	end := h.now()
	if v := r.URL.Query().Get("period_end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "period_end must be an RFC3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
		end = t
	}
	start, end := m.Schedule.PeriodEndingAt(end)
	return start, end, true
}

// Execute runs a stored monitor. ?dryrun=true evaluates without writing alerts or
// sending notifications.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	dryrun := false
	if v := r.URL.Query().Get("dryrun"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "dryrun must be true or false")
			return
		}
		dryrun = b
	}

	start, end, ok := h.period(w, r, m)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.executeTimeout)
	defer cancel()
	jsonOK(w, h.runner.RunMonitor(ctx, m, start, end, dryrun))
}

// ExecuteUnsaved runs the monitor in the request body. It is always a dry run.
func (h *Handler) ExecuteUnsaved(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMonitor(w, r)
	if !ok {
		return
	}
	m.ID = models.NoID
	m.Version = 0
	m.Normalize(h.now())
	if !h.validate(w, m) {
		return
	}

	start, end, ok := h.period(w, r, m)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.executeTimeout)
	defer cancel()
	jsonOK(w, h.runner.RunMonitor(ctx, m, start, end, true))
}

// Acknowledge acknowledges the listed ACTIVE alerts of a monitor.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}

	var req AcknowledgeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	ids := make([]string, 0, len(req.Alerts))
	for _, id := range req.Alerts {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "at least one alert id is required")
		return
	}

	result, err := h.runner.Acknowledge(r.Context(), m.ID, ids)
	if err != nil {
		log.Printf("monitor %s: acknowledge error: %v", m, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, result)
}
