package monitors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/storage"
)

// mockMonitorRepository keeps monitors in memory with version checks.
type mockMonitorRepository struct {
	monitors  map[string]*models.Monitor
	nextID    int
	listError error
	getError  error
}

func newMockMonitorRepository() *mockMonitorRepository {
	return &mockMonitorRepository{monitors: make(map[string]*models.Monitor)}
}

func (m *mockMonitorRepository) Create(ctx context.Context, monitor *models.Monitor) error {
	if monitor.ID == "" {
		m.nextID++
		monitor.ID = fmt.Sprintf("mon-%d", m.nextID)
	}
	monitor.Version = 1
	stored := *monitor
	m.monitors[monitor.ID] = &stored
	return nil
}

func (m *mockMonitorRepository) GetByID(ctx context.Context, id string) (*models.Monitor, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	stored, ok := m.monitors[id]
	if !ok {
		return nil, nil
	}
	cp := *stored
	return &cp, nil
}

func (m *mockMonitorRepository) Update(ctx context.Context, monitor *models.Monitor) error {
	stored, ok := m.monitors[monitor.ID]
	if !ok || stored.Version != monitor.Version {
		return fmt.Errorf("monitor %s: %w", monitor.ID, storage.ErrVersionConflict)
	}
	monitor.Version++
	cp := *monitor
	m.monitors[monitor.ID] = &cp
	return nil
}

func (m *mockMonitorRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.monitors[id]; !ok {
		return fmt.Errorf("monitor not found: %s", id)
	}
	delete(m.monitors, id)
	return nil
}

func (m *mockMonitorRepository) List(ctx context.Context) ([]*models.Monitor, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	var out []*models.Monitor
	for _, mon := range m.monitors {
		cp := *mon
		out = append(out, &cp)
	}
	return out, nil
}

type runCall struct {
	monitorID  string
	start, end time.Time
	dryrun     bool
}

type moveCall struct {
	monitorID string
	deleted   bool
}

// mockRunner records calls instead of running monitors.
type mockRunner struct {
	runs     []runCall
	moves    []moveCall
	acked    []string
	ackErr   error
	moved    int
	hadDeadline bool
}

func (m *mockRunner) RunMonitor(ctx context.Context, monitor *models.Monitor, periodStart, periodEnd time.Time, dryrun bool) *models.MonitorRunResult {
	_, m.hadDeadline = ctx.Deadline()
	m.runs = append(m.runs, runCall{monitorID: monitor.ID, start: periodStart, end: periodEnd, dryrun: dryrun})
	return &models.MonitorRunResult{
		MonitorName:    monitor.Name,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		TriggerResults: map[string]*models.TriggerRunResult{},
	}
}

func (m *mockRunner) Acknowledge(ctx context.Context, monitorID string, alertIDs []string) (*alerting.AcknowledgeResult, error) {
	if m.ackErr != nil {
		return nil, m.ackErr
	}
	m.acked = append(m.acked, alertIDs...)
	return &alerting.AcknowledgeResult{
		Acknowledged: []*models.Alert{},
		Failed:       []alerting.AcknowledgeFailure{},
		Missing:      alertIDs,
	}, nil
}

func (m *mockRunner) MoveAlerts(ctx context.Context, monitorID string, monitor *models.Monitor) (int, error) {
	m.moves = append(m.moves, moveCall{monitorID: monitorID, deleted: monitor == nil})
	return m.moved, nil
}

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestHandler(repo *mockMonitorRepository, runner *mockRunner) (*Handler, http.Handler) {
	h := NewHandler(repo, runner, alerting.Limits{MinThrottle: time.Minute}, 5*time.Second)
	h.now = func() time.Time { return testNow }

	r := chi.NewRouter()
	r.Get("/monitors", h.List)
	r.Post("/monitors", h.Create)
	r.Post("/monitors/_execute", h.ExecuteUnsaved)
	r.Get("/monitors/{id}", h.Get)
	r.Put("/monitors/{id}", h.Update)
	r.Delete("/monitors/{id}", h.Delete)
	r.Post("/monitors/{id}/_execute", h.Execute)
	r.Post("/monitors/{id}/_acknowledge/alerts", h.Acknowledge)
	return h, r
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Code, resp.Error.Message
}

const queryMonitorJSON = `{
	"name": "checkout errors",
	"monitor_type": "query_level_monitor",
	"enabled": true,
	"schedule": {"period": {"interval": 5, "unit": "MINUTES"}},
	"inputs": [{"search": {"indices": ["logs-*"], "query": {"size": 0}}}],
	"triggers": [{"query_level_trigger": {
		"id": "t1",
		"name": "many errors",
		"severity": "1",
		"condition": {"script": {"source": "ctx.results[0].hits.total.value > 10"}},
		"actions": [{"name": "page", "destination_id": "ops-slack", "message_template": {"source": "{{.ctx.monitor.name}}"}}]
	}}]
}`

func storedMonitor(t *testing.T, repo *mockMonitorRepository, id string) *models.Monitor {
	t.Helper()
	var m models.Monitor
	if err := json.Unmarshal([]byte(queryMonitorJSON), &m); err != nil {
		t.Fatalf("unmarshal monitor: %v", err)
	}
	m.ID = id
	m.Normalize(testNow.Add(-time.Hour))
	if err := repo.Create(context.Background(), &m); err != nil {
		t.Fatalf("create monitor: %v", err)
	}
	return &m
}

func TestCreate(t *testing.T) {
	repo := newMockMonitorRepository()
	_, handler := newTestHandler(repo, &mockRunner{})

	rec := do(t, handler, http.MethodPost, "/monitors", queryMonitorJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got models.Monitor
	decodeData(t, rec, &got)
	if got.ID != "mon-1" || got.Version != 1 {
		t.Errorf("id/version = %s/%d, want mon-1/1", got.ID, got.Version)
	}
	if got.EnabledTime == nil || !got.EnabledTime.Equal(testNow) {
		t.Errorf("enabled_time = %v, want %v", got.EnabledTime, testNow)
	}
	actions := got.Triggers[0].QueryLevel.Actions
	if len(actions) != 1 || actions[0].ID == "" {
		t.Errorf("action id not generated: %+v", actions)
	}
	if len(repo.monitors) != 1 {
		t.Errorf("stored %d monitors, want 1", len(repo.monitors))
	}
}

func TestCreate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		existing string
		wantCode int
		errCode  string
		errMsg   string
	}{
		{
			name:     "invalid json",
			body:     "{",
			wantCode: http.StatusBadRequest,
			errCode:  errCodeBadRequest,
		},
		{
			name:     "unknown field",
			body:     `{"name":"x","bogus":1}`,
			wantCode: http.StatusBadRequest,
			errCode:  errCodeBadRequest,
		},
		{
			name:     "missing name",
			body:     strings.Replace(queryMonitorJSON, `"checkout errors"`, `""`, 1),
			wantCode: http.StatusBadRequest,
			errCode:  errCodeValidationFailed,
			errMsg:   "monitor name is required",
		},
		{
			name:     "incompatible trigger",
			body:     strings.Replace(queryMonitorJSON, "query_level_monitor", "bucket_level_monitor", 1),
			wantCode: http.StatusBadRequest,
			errCode:  errCodeValidationFailed,
			errMsg:   "aggregation is required",
		},
		{
			name: "throttle below minimum",
			body: strings.Replace(queryMonitorJSON, `"destination_id": "ops-slack",`,
				`"destination_id": "ops-slack", "throttle_enabled": true, "throttle": {"value": 0, "unit": "MINUTES"},`, 1),
			wantCode: http.StatusBadRequest,
			errCode:  errCodeValidationFailed,
			errMsg:   "throttle value must be greater than 0",
		},
		{
			name:     "duplicate id",
			body:     strings.Replace(queryMonitorJSON, `"name": "checkout errors",`, `"id": "taken", "name": "checkout errors",`, 1),
			existing: "taken",
			wantCode: http.StatusConflict,
			errCode:  errCodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockMonitorRepository()
			if tt.existing != "" {
				storedMonitor(t, repo, tt.existing)
			}
			_, handler := newTestHandler(repo, &mockRunner{})

			rec := do(t, handler, http.MethodPost, "/monitors", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			code, msg := errorCode(t, rec)
			if code != tt.errCode {
				t.Errorf("error code = %q, want %q", code, tt.errCode)
			}
			if tt.errMsg != "" && !strings.Contains(msg, tt.errMsg) {
				t.Errorf("error message = %q, want it to contain %q", msg, tt.errMsg)
			}
		})
	}
}

func TestGetAndList(t *testing.T) {
	repo := newMockMonitorRepository()
	storedMonitor(t, repo, "m1")
	disabled := storedMonitor(t, repo, "m2")
	disabled.Enabled = false
	disabled.EnabledTime = nil
	repo.monitors["m2"] = disabled
	_, handler := newTestHandler(repo, &mockRunner{})

	rec := do(t, handler, http.MethodGet, "/monitors/m1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got models.Monitor
	decodeData(t, rec, &got)
	if got.ID != "m1" || got.Name != "checkout errors" {
		t.Errorf("got %s %q", got.ID, got.Name)
	}

	if rec := do(t, handler, http.MethodGet, "/monitors/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing monitor status = %d, want 404", rec.Code)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"m1", "m2"}},
		{"?enabled=true", []string{"m1"}},
		{"?enabled=false", []string{"m2"}},
		{"?type=bucket_level_monitor", []string{}},
	}
	for _, tt := range tests {
		t.Run("list"+tt.query, func(t *testing.T) {
			rec := do(t, handler, http.MethodGet, "/monitors"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var list []*models.Monitor
			decodeData(t, rec, &list)
			ids := []string{}
			for _, m := range list {
				ids = append(ids, m.ID)
			}
			if len(ids) > 1 && ids[0] > ids[1] {
				ids[0], ids[1] = ids[1], ids[0]
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if rec := do(t, handler, http.MethodGet, "/monitors?enabled=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad enabled filter status = %d, want 400", rec.Code)
	}
}

func TestList_StorageError(t *testing.T) {
	repo := newMockMonitorRepository()
	repo.listError = errors.New("disk I/O error")
	_, handler := newTestHandler(repo, &mockRunner{})

	rec := do(t, handler, http.MethodGet, "/monitors", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if _, msg := errorCode(t, rec); strings.Contains(msg, "disk") {
		t.Errorf("internal error leaked: %q", msg)
	}
}

func TestUpdate(t *testing.T) {
	repo := newMockMonitorRepository()
	original := storedMonitor(t, repo, "m1")
	runner := &mockRunner{}
	_, handler := newTestHandler(repo, runner)

	body := strings.Replace(queryMonitorJSON, `"checkout errors"`, `"checkout errors v2"`, 1)
	rec := do(t, handler, http.MethodPut, "/monitors/m1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var got models.Monitor
	decodeData(t, rec, &got)
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
	if got.Name != "checkout errors v2" {
		t.Errorf("name = %q", got.Name)
	}
	if !got.EnabledTime.Equal(*original.EnabledTime) {
		t.Errorf("enabled_time changed from %v to %v", original.EnabledTime, got.EnabledTime)
	}
	if diff := cmp.Diff([]moveCall{{monitorID: "m1"}}, runner.moves, cmp.AllowUnexported(moveCall{})); diff != "" {
		t.Errorf("moves mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"missing monitor", "/monitors/nope", queryMonitorJSON, http.StatusNotFound},
		{"stale version", "/monitors/m1", strings.Replace(queryMonitorJSON, `"enabled": true,`, `"enabled": true, "version": 7,`, 1), http.StatusConflict},
		{"invalid monitor", "/monitors/m1", `{"name": ""}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockMonitorRepository()
			storedMonitor(t, repo, "m1")
			runner := &mockRunner{}
			_, handler := newTestHandler(repo, runner)

			rec := do(t, handler, http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if len(runner.moves) != 0 {
				t.Errorf("alerts moved on failed update: %+v", runner.moves)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	repo := newMockMonitorRepository()
	storedMonitor(t, repo, "m1")
	runner := &mockRunner{moved: 3}
	_, handler := newTestHandler(repo, runner)

	rec := do(t, handler, http.MethodDelete, "/monitors/m1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got DeleteResponse
	decodeData(t, rec, &got)
	if diff := cmp.Diff(DeleteResponse{ID: "m1", AlertsMoved: 3}, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if _, ok := repo.monitors["m1"]; ok {
		t.Error("monitor still stored")
	}
	if len(runner.moves) != 1 || !runner.moves[0].deleted {
		t.Errorf("moves = %+v, want one move of a deleted monitor", runner.moves)
	}

	if rec := do(t, handler, http.MethodDelete, "/monitors/m1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantCode   int
		wantDryrun bool
		wantEnd    time.Time
	}{
		{"defaults", "", http.StatusOK, false, testNow},
		{"dry run", "?dryrun=true", http.StatusOK, true, testNow},
		{"period end", "?period_end=2024-04-30T12:00:00Z", http.StatusOK, false, time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC)},
		{"bad dryrun", "?dryrun=yes-please", http.StatusBadRequest, false, time.Time{}},
		{"bad period end", "?period_end=yesterday", http.StatusBadRequest, false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockMonitorRepository()
			storedMonitor(t, repo, "m1")
			runner := &mockRunner{}
			_, handler := newTestHandler(repo, runner)

			rec := do(t, handler, http.MethodPost, "/monitors/m1/_execute"+tt.query, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				if len(runner.runs) != 0 {
					t.Error("monitor ran on bad request")
				}
				return
			}

			want := []runCall{{monitorID: "m1", start: tt.wantEnd.Add(-5 * time.Minute), end: tt.wantEnd, dryrun: tt.wantDryrun}}
			if diff := cmp.Diff(want, runner.runs, cmp.AllowUnexported(runCall{})); diff != "" {
				t.Errorf("runs mismatch (-want +got):\n%s", diff)
			}
			if !runner.hadDeadline {
				t.Error("run context has no deadline")
			}

			var result struct {
				MonitorName string `json:"monitor_name"`
			}
			decodeData(t, rec, &result)
			if result.MonitorName != "checkout errors" {
				t.Errorf("monitor_name = %q", result.MonitorName)
			}
		})
	}
}

func TestExecuteUnsaved(t *testing.T) {
	repo := newMockMonitorRepository()
	runner := &mockRunner{}
	_, handler := newTestHandler(repo, runner)

	body := strings.Replace(queryMonitorJSON, `"name": "checkout errors",`, `"id": "ignored", "name": "checkout errors",`, 1)
	rec := do(t, handler, http.MethodPost, "/monitors/_execute", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(runner.runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runner.runs))
	}
	if run := runner.runs[0]; run.monitorID != models.NoID || !run.dryrun {
		t.Errorf("run = %+v, want unsaved dry run", run)
	}
	if len(repo.monitors) != 0 {
		t.Error("unsaved monitor was stored")
	}

	if rec := do(t, handler, http.MethodPost, "/monitors/_execute", `{"name":"x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid monitor status = %d, want 400", rec.Code)
	}
}

func TestAcknowledge(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		ackErr   error
		wantCode int
		wantAck  []string
	}{
		{"acknowledges", "/monitors/m1/_acknowledge/alerts", `{"alerts":["a1"," a2 ",""]}`, nil, http.StatusOK, []string{"a1", "a2"}},
		{"empty list", "/monitors/m1/_acknowledge/alerts", `{"alerts":[]}`, nil, http.StatusBadRequest, nil},
		{"bad body", "/monitors/m1/_acknowledge/alerts", `[`, nil, http.StatusBadRequest, nil},
		{"missing monitor", "/monitors/nope/_acknowledge/alerts", `{"alerts":["a1"]}`, nil, http.StatusNotFound, nil},
		{"store failure", "/monitors/m1/_acknowledge/alerts", `{"alerts":["a1"]}`, errors.New("boom"), http.StatusInternalServerError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockMonitorRepository()
			storedMonitor(t, repo, "m1")
			runner := &mockRunner{ackErr: tt.ackErr}
			_, handler := newTestHandler(repo, runner)

			rec := do(t, handler, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if diff := cmp.Diff(tt.wantAck, runner.acked); diff != "" {
				t.Errorf("acked mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
