package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/aircloud-bridge/internal/aircloud"
	"github.com/nerrad567/aircloud-bridge/internal/audit"
	"github.com/nerrad567/aircloud-bridge/internal/auth"
	"github.com/nerrad567/aircloud-bridge/internal/climate"
	"github.com/nerrad567/aircloud-bridge/internal/control"
	"github.com/nerrad567/aircloud-bridge/internal/coordinator"
	"github.com/nerrad567/aircloud-bridge/internal/history"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aircloud-bridge/internal/infrastructure/logging"
)

// ─── Fakes ─────────────────────────────────────────────────────────

type fakeCoordinator struct {
	mu        sync.Mutex
	snap      coordinator.Snapshot
	status    coordinator.Status
	result    coordinator.Result
	refreshEr error
	subs      []func(coordinator.Snapshot)
}

func (f *fakeCoordinator) Snapshot() coordinator.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeCoordinator) Device(id int64) (climate.DeviceState, bool) {
	return f.Snapshot().Device(id)
}

func (f *fakeCoordinator) Status() coordinator.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeCoordinator) Subscribe(fn func(coordinator.Snapshot)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeCoordinator) Refresh(context.Context) (coordinator.Result, error) {
	return f.result, f.refreshEr
}

type fakeController struct {
	mu     sync.Mutex
	calls  []control.Intent
	ctxSrc []string
	err    error
}

func (f *fakeController) Apply(ctx context.Context, id int64, in control.Intent) (control.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.ctxSrc = append(f.ctxSrc, control.SourceFrom(ctx))
	f.mu.Unlock()
	if f.err != nil {
		return control.Result{}, f.err
	}
	return control.Result{CommandID: "cmd-1", DeviceID: id, VendorCommandID: "v-1"}, nil
}

type fakeHistory struct {
	query   history.Query
	entries []history.Entry
}

func (f *fakeHistory) List(_ context.Context, q history.Query) ([]history.Entry, error) {
	f.query = q
	return f.entries, nil
}

type fakeCommands struct {
	filter audit.Filter
}

func (f *fakeCommands) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.filter = filter
	return &audit.ListResult{Commands: []audit.Command{{DeviceID: filter.DeviceID}}, Total: 1}, nil
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func unit(raw string) climate.DeviceState {
	return climate.Normalize(json.RawMessage(raw), 7)
}

func testSnapshot() coordinator.Snapshot {
	return coordinator.Snapshot{
		Devices: []climate.DeviceState{
			unit(`{"id":1,"name":"Lounge","power":"ON","mode":"COOLING","iduTemperature":22,"online":true}`),
			unit(`{"id":2,"name":"Bedroom","power":"OFF","mode":"HEATING","iduTemperature":20,"online":false}`),
		},
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer creates a Server backed by fakes. mutate may adjust the
// dependencies before the server is built.
func testServer(t *testing.T, mutate func(*Deps)) (*Server, *fakeCoordinator, *fakeController) {
	t.Helper()

	coord := &fakeCoordinator{
		snap:   testSnapshot(),
		status: coordinator.Status{State: coordinator.StateIdle, LastUpdateSuccess: true, Cycles: 3, Interval: time.Minute},
	}
	ctrl := &fakeController{}
	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:      testLogger(),
		Coordinator: coord,
		Controller:  ctrl,
		Version:     "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, coord, ctrl
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestNewRequiresDependencies(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Coordinator: &fakeCoordinator{}, Controller: &fakeController{}}},
		{"no coordinator", Deps{Logger: testLogger(), Controller: &fakeController{}}},
		{"no controller", Deps{Logger: testLogger(), Coordinator: &fakeCoordinator{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return nil }),
		}
	})

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	components, _ := resp["components"].(map[string]any)
	if components["database"] != "ok" {
		t.Errorf("components = %v", components)
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return nil }),
			"mqtt":     checkFunc(func(context.Context) error { return errors.New("not connected") }),
		}
	})

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want 503", w.Code)
	}
	resp := decode(t, w)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	components, _ := resp["components"].(map[string]any)
	if components["mqtt"] != "not connected" {
		t.Errorf("mqtt component = %v", components["mqtt"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want http://localhost:3000", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Device Tests ──────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Devices   []DeviceView `json:"devices"`
		Count     int          `json:"count"`
		FetchedAt time.Time    `json:"fetched_at"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Devices) != 2 {
		t.Fatalf("count = %d, devices = %d, want 2", resp.Count, len(resp.Devices))
	}
	if !resp.FetchedAt.Equal(testSnapshot().FetchedAt) {
		t.Errorf("fetched_at = %v", resp.FetchedAt)
	}

	lounge, bedroom := resp.Devices[0], resp.Devices[1]
	if lounge.ID != 1 || !lounge.Available || lounge.HVACMode != climate.ModeCool {
		t.Errorf("lounge = %+v", lounge)
	}
	if bedroom.Available || bedroom.HVACMode != climate.ModeOff {
		t.Errorf("bedroom = %+v", bedroom)
	}
}

func TestListDevices_Empty(t *testing.T) {
	srv, coord, _ := testServer(t, nil)
	coord.snap = coordinator.Snapshot{}

	w := do(t, srv, http.MethodGet, "/api/v1/devices", "")
	resp := decode(t, w)
	if resp["count"] != float64(0) {
		t.Errorf("count = %v, want 0", resp["count"])
	}
	if _, ok := resp["fetched_at"]; ok {
		t.Error("fetched_at should be omitted before the first refresh")
	}
}

func TestGetDevice(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/devices/1", http.StatusOK},
		{"/api/v1/devices/99", http.StatusNotFound},
		{"/api/v1/devices/abc", http.StatusBadRequest},
		{"/api/v1/devices/-4", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(t, srv, http.MethodGet, tt.path, "")
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
		})
	}

	w := do(t, srv, http.MethodGet, "/api/v1/devices/1", "")
	var view DeviceView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.Name != "Lounge" || view.TargetTemperature != 22 {
		t.Errorf("device = %+v", view)
	}
}

func TestSetDeviceState_Accepted(t *testing.T) {
	srv, _, ctrl := testServer(t, nil)

	w := do(t, srv, http.MethodPut, "/api/v1/devices/1/state", `{"power":true,"temperature":23.5}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if resp["command_id"] != "cmd-1" || resp["vendor_command_id"] != "v-1" {
		t.Errorf("response = %v", resp)
	}

	if len(ctrl.calls) != 1 {
		t.Fatalf("controller calls = %d, want 1", len(ctrl.calls))
	}
	in := ctrl.calls[0]
	if in.Power == nil || !*in.Power || in.Temperature == nil || *in.Temperature != 23.5 {
		t.Errorf("intent = %+v", in)
	}
	if ctrl.ctxSrc[0] != audit.SourceAPI {
		t.Errorf("source = %q, want %q", ctrl.ctxSrc[0], audit.SourceAPI)
	}
}

func TestSetDeviceState_BadRequest(t *testing.T) {
	srv, _, ctrl := testServer(t, nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"invalid JSON", "/api/v1/devices/1/state", `{not json`},
		{"unknown field", "/api/v1/devices/1/state", `{"colour":"blue"}`},
		{"invalid id", "/api/v1/devices/x/state", `{"power":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPut, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
	if len(ctrl.calls) != 0 {
		t.Errorf("controller called %d times, want 0", len(ctrl.calls))
	}
}

func TestSetDeviceState_ControlErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"not found", control.ErrDeviceNotFound, http.StatusNotFound, control.CodeDeviceNotFound},
		{"empty intent", control.ErrEmptyIntent, http.StatusUnprocessableEntity, control.CodeInvalidIntent},
		{"invalid intent", fmt.Errorf("%w: temperature out of range", control.ErrInvalidIntent), http.StatusUnprocessableEntity, control.CodeInvalidIntent},
		{"auth", fmt.Errorf("sending: %w", aircloud.ErrAuthentication), http.StatusUnauthorized, control.CodeAuthFailed},
		{"unreachable", fmt.Errorf("sending: %w", aircloud.ErrCommunication), http.StatusServiceUnavailable, control.CodeVendorUnreachable},
		{"vendor", fmt.Errorf("sending: %w", aircloud.ErrGeneral), http.StatusBadGateway, control.CodeVendorError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, ctrl := testServer(t, nil)
			ctrl.err = tt.err

			w := do(t, srv, http.MethodPut, "/api/v1/devices/1/state", `{"power":false}`)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
			var e Error
			if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if e.Code != tt.want {
				t.Errorf("code = %q, want %q", e.Code, tt.want)
			}
		})
	}
}

// ─── History and Command Log Tests ─────────────────────────────────

func TestGetDeviceHistory(t *testing.T) {
	hist := &fakeHistory{entries: []history.Entry{{ID: 5, DeviceID: 1, Source: history.SourceRefresh}}}
	srv, _, _ := testServer(t, func(d *Deps) { d.History = hist })

	w := do(t, srv, http.MethodGet, "/api/v1/devices/1/history?limit=10&since=2026-03-01T00:00:00Z", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}
	if hist.query.DeviceID != 1 || hist.query.Limit != 10 {
		t.Errorf("query = %+v", hist.query)
	}
	if !hist.query.Since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", hist.query.Since)
	}

	for _, target := range []string{
		"/api/v1/devices/1/history?limit=0",
		"/api/v1/devices/1/history?limit=9999",
		"/api/v1/devices/1/history?since=yesterday",
	} {
		if w := do(t, srv, http.MethodGet, target, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, w.Code)
		}
	}
}

func TestGetDeviceHistory_NotConfigured(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/devices/1/history", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestListCommands(t *testing.T) {
	cmds := &fakeCommands{}
	srv, _, _ := testServer(t, func(d *Deps) { d.Commands = cmds })

	w := do(t, srv, http.MethodGet, "/api/v1/commands?device_id=2&source=mqtt&outcome=failed&limit=20&offset=40", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := audit.Filter{DeviceID: 2, Source: "mqtt", Outcome: audit.OutcomeFailed, Limit: 20, Offset: 40}
	if cmds.filter != want {
		t.Errorf("filter = %+v, want %+v", cmds.filter, want)
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/commands?device_id=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad device_id status = %d, want 400", w.Code)
	}
}

func TestListCommands_NotConfigured(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	if w := do(t, srv, http.MethodGet, "/api/v1/commands", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── System Tests ──────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode(t, w)
	if resp["state"] != string(coordinator.StateIdle) {
		t.Errorf("state = %v", resp["state"])
	}
	if resp["devices"] != float64(2) || resp["cycles"] != float64(3) {
		t.Errorf("response = %v", resp)
	}
	if resp["last_update_success"] != true {
		t.Errorf("last_update_success = %v", resp["last_update_success"])
	}
}

func TestRefresh(t *testing.T) {
	start := time.Now()
	tests := []struct {
		name    string
		result  coordinator.Result
		err     error
		code    int
		outcome string
	}{
		{
			name:    "success",
			result:  coordinator.Result{Outcome: coordinator.StateSuccess, Devices: 2, Started: start, Finished: start.Add(120 * time.Millisecond)},
			code:    http.StatusOK,
			outcome: "success",
		},
		{
			name:    "transient failure",
			result:  coordinator.Result{Outcome: coordinator.StateTransientFailed, Err: aircloud.ErrCommunication},
			code:    http.StatusOK,
			outcome: "transient_failed",
		},
		{
			name:   "suspended",
			result: coordinator.Result{Outcome: coordinator.StateAuthFailed, Err: coordinator.ErrReauthRequired},
			code:   http.StatusConflict,
		},
		{
			name: "abandoned",
			err:  context.DeadlineExceeded,
			code: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, coord, _ := testServer(t, nil)
			coord.result = tt.result
			coord.refreshEr = tt.err

			w := do(t, srv, http.MethodPost, "/api/v1/refresh", "")
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			if tt.outcome == "" {
				return
			}
			var resp RefreshResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if string(resp.Outcome) != tt.outcome {
				t.Errorf("outcome = %q, want %q", resp.Outcome, tt.outcome)
			}
			if (tt.result.Err != nil) != (resp.Error != "") {
				t.Errorf("error = %q", resp.Error)
			}
		})
	}
}

func TestReauth(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"success", `{"email":"a@b.c","password":"pw"}`, nil, http.StatusOK},
		{"missing password", `{"email":"a@b.c"}`, nil, http.StatusUnprocessableEntity},
		{"invalid JSON", `{`, nil, http.StatusBadRequest},
		{"rejected", `{"email":"a@b.c","password":"bad"}`, aircloud.ErrAuthentication, http.StatusUnauthorized},
		{"unreachable", `{"email":"a@b.c","password":"pw"}`, aircloud.ErrCommunication, http.StatusServiceUnavailable},
		{"other", `{"email":"a@b.c","password":"pw"}`, errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got aircloud.Credentials
			srv, _, _ := testServer(t, func(d *Deps) {
				d.Reauth = func(_ context.Context, creds aircloud.Credentials) error {
					got = creds
					return tt.err
				}
			})

			w := do(t, srv, http.MethodPost, "/api/v1/account/reauth", tt.body)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.code, w.Body.String())
			}
			if tt.code == http.StatusOK && got.Email != "a@b.c" {
				t.Errorf("credentials = %+v", got)
			}
		})
	}
}

func TestReauth_NotConfigured(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/account/reauth", `{"email":"a@b.c","password":"pw"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestSystemMetrics(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) {
		d.DBStats = func() sql.DBStats { return sql.DBStats{OpenConnections: 1, Idle: 1} }
	})

	w := do(t, srv, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Devices.Total != 2 || m.Devices.Available != 1 || m.Devices.On != 1 {
		t.Errorf("devices = %+v", m.Devices)
	}
	if m.Devices.ByHVACMode["cool"] != 1 || m.Devices.ByHVACMode["off"] != 1 {
		t.Errorf("by_hvac_mode = %v", m.Devices.ByHVACMode)
	}
	if m.Refresh.Cycles != 3 || m.Refresh.IntervalSeconds != 60 {
		t.Errorf("refresh = %+v", m.Refresh)
	}
	if m.Database == nil || m.Database.OpenConnections != 1 {
		t.Errorf("database = %+v", m.Database)
	}
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aircloud_test_total",
		Help: "Test counter.",
	})
	reg.MustRegister(counter)
	counter.Inc()

	srv, _, _ := testServer(t, func(d *Deps) { d.Gatherer = reg })

	w := do(t, srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "aircloud_test_total 1") {
		t.Errorf("metrics output missing counter:\n%s", w.Body.String())
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func newTestClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: subs,
	}
	hub.Register(client)
	return client
}

func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return WSMessage{}
}

func expectNothing(t *testing.T, client *WSClient) {
	t.Helper()
	select {
	case data := <-client.send:
		t.Errorf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())

	subscribed := newTestClient(hub, ChannelDeviceState)
	other := newTestClient(hub, ChannelCoordinatorStatus)

	hub.Broadcast(ChannelDeviceState, map[string]any{"id": 1, "on": true})

	if msg := receive(t, subscribed); msg.EventType != ChannelDeviceState || msg.Type != WSTypeEvent {
		t.Errorf("message = %+v", msg)
	}
	expectNothing(t, other)
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}
	client := newTestClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}
	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestRelaySnapshot(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	client := newTestClient(srv.Hub(), ChannelDeviceState, ChannelDeviceRemoved)

	snap := testSnapshot()
	srv.relaySnapshot(snap)
	receive(t, client)
	receive(t, client)
	expectNothing(t, client)

	// Identical snapshot: nothing to send.
	srv.relaySnapshot(snap)
	expectNothing(t, client)

	// One unit changes, the other leaves the account.
	next := coordinator.Snapshot{
		Devices:   []climate.DeviceState{unit(`{"id":1,"name":"Lounge","power":"OFF","mode":"COOLING","iduTemperature":22,"online":true}`)},
		FetchedAt: snap.FetchedAt.Add(time.Minute),
	}
	srv.relaySnapshot(next)

	changed := receive(t, client)
	if changed.EventType != ChannelDeviceState {
		t.Fatalf("first event = %q, want %q", changed.EventType, ChannelDeviceState)
	}
	payload, _ := changed.Payload.(map[string]any)
	if payload["hvac_mode"] != "off" {
		t.Errorf("payload = %v", payload)
	}
	removed := receive(t, client)
	if removed.EventType != ChannelDeviceRemoved {
		t.Errorf("second event = %q, want %q", removed.EventType, ChannelDeviceRemoved)
	}
}

func TestRelaySnapshot_IgnoresUnfetched(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	client := newTestClient(srv.Hub(), ChannelDeviceState)

	srv.relaySnapshot(coordinator.Snapshot{Devices: testSnapshot().Devices})
	expectNothing(t, client)
}

func TestBroadcastStatus(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	client := newTestClient(srv.Hub(), ChannelCoordinatorStatus)

	srv.BroadcastStatus(coordinator.Status{State: coordinator.StateAuthFailed, ReauthRequired: true})

	msg := receive(t, client)
	payload, _ := msg.Payload.(map[string]any)
	if payload["reauth_required"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}

	sub := WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: WSSubscribePayload{Channels: []string{ChannelCoordinatorStatus}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "s1" {
		t.Fatalf("ack = %+v", ack)
	}

	srv.BroadcastStatus(coordinator.Status{State: coordinator.StateSuccess})

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.EventType != ChannelCoordinatorStatus {
		t.Errorf("event = %+v", event)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != WSTypePong {
		t.Errorf("pong = %+v", pong)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv, coord, _ := testServer(t, func(d *Deps) { d.Config.Port = 19080 })

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if len(coord.subs) != 1 {
		t.Errorf("coordinator subscriptions = %d, want 1", len(coord.subs))
	}
	if err := srv.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	var resp *http.Response
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://127.0.0.1:19080/api/v1/health")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

func tokenFor(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.GenerateToken("test", role, testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return token
}

func TestAuth_Permissions(t *testing.T) {
	tests := []struct {
		name   string
		role   auth.Role // empty sends no token
		method string
		path   string
		body   string
		code   int
	}{
		{"health is open", "", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"prometheus is open", "", http.MethodGet, "/metrics", "", http.StatusOK},
		{"no token", "", http.MethodGet, "/api/v1/devices", "", http.StatusUnauthorized},
		{"viewer reads", auth.RoleViewer, http.MethodGet, "/api/v1/devices", "", http.StatusOK},
		{"viewer cannot control", auth.RoleViewer, http.MethodPut, "/api/v1/devices/1/state", `{"power":true}`, http.StatusForbidden},
		{"viewer cannot refresh", auth.RoleViewer, http.MethodPost, "/api/v1/refresh", "", http.StatusForbidden},
		{"operator controls", auth.RoleOperator, http.MethodPut, "/api/v1/devices/1/state", `{"power":true}`, http.StatusAccepted},
		{"operator cannot reauth", auth.RoleOperator, http.MethodPost, "/api/v1/account/reauth", `{"email":"a@b.c","password":"pw"}`, http.StatusForbidden},
		{"admin reauths", auth.RoleAdmin, http.MethodPost, "/api/v1/account/reauth", `{"email":"a@b.c","password":"pw"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := testServer(t, func(d *Deps) {
				d.Config.Auth.JWTSecret = testJWTSecret
				d.Reauth = func(context.Context, aircloud.Credentials) error { return nil }
			})

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.role != "" {
				req.Header.Set("Authorization", "Bearer "+tokenFor(t, tt.role))
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			if w.Code != tt.code {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.code, w.Body.String())
			}
		})
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) { d.Config.Auth.JWTSecret = testJWTSecret })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestAuth_WebSocketQueryToken(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) { d.Config.Auth.JWTSecret = testJWTSecret })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %+v, want 401", resp)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(base+"?token="+tokenFor(t, auth.RoleViewer), nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	resp.Body.Close()
	conn.Close()
}
