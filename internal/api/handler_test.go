package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/conveyortwin/conveyortwin/internal/analytics"
	"github.com/conveyortwin/conveyortwin/internal/persist"
	"github.com/conveyortwin/conveyortwin/internal/simulator"
	"github.com/conveyortwin/conveyortwin/internal/twin"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// --- helpers -----------------------------------------------------------------

type fakeReadings struct {
	rows  []persist.Reading
	err   error
	limit int
}

func (f *fakeReadings) RecentReadings(_ context.Context, limit int) ([]persist.Reading, error) {
	f.limit = limit
	return f.rows, f.err
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	tw, err := twin.New(twin.Settings{
		Thresholds:          types.DefaultThresholds(),
		MaxSpeed:            3.0,
		MaintenanceInterval: 720,
	})
	if err != nil {
		t.Fatalf("twin.New: %v", err)
	}
	tw.Update(types.NewSnapshot(time.Now(), map[string]float64{
		types.MetricConveyorSpeed:    1.0,
		types.MetricMotorTemperature: 45,
		types.MetricVibrationLevel:   2.0,
		types.MetricMotorCurrent:     12,
	}))
	return Deps{
		Twin:      tw,
		Analytics: analytics.New(tw, nil),
		Simulator: simulator.New(tw, simulator.Options{}),
	}
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	return New(newTestDeps(t))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func send(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body=%q)", err, rec.Body.String())
	}
}

// --- /api/v1/health ----------------------------------------------------------

func TestHealth_OK(t *testing.T) {
	rec := get(t, newTestHandler(t), "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
	if resp.Mode != types.ModeNormal {
		t.Errorf("Mode = %q, want NORMAL", resp.Mode)
	}
	if resp.UpdatedAt == nil {
		t.Error("UpdatedAt should be set after an update")
	}
	if resp.GeneratedAt == "" {
		t.Error("GeneratedAt should be set")
	}
}

func TestHealth_DegradedWhenReadingsMissing(t *testing.T) {
	d := newTestDeps(t)
	d.Twin.Update(types.SensorSnapshot{Timestamp: time.Now()})
	var resp HealthResponse
	decodeBody(t, get(t, New(d), "/api/v1/health"), &resp)
	if resp.Status != "degraded" || !resp.Degraded {
		t.Errorf("Status = %q Degraded = %v, want degraded/true", resp.Status, resp.Degraded)
	}
	if len(resp.Missing) == 0 {
		t.Error("Missing should list the absent metrics")
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	rec := send(t, newTestHandler(t), http.MethodPost, "/api/v1/health", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Error == "" {
		t.Error("error body should be populated")
	}
}

// --- read endpoints ------------------------------------------------------------

func TestState(t *testing.T) {
	rec := get(t, newTestHandler(t), "/api/v1/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st types.OperationalState
	decodeBody(t, rec, &st)
	if st.Speed != 1.0 || st.MotorTemperature != 45 {
		t.Errorf("state = %+v, want speed 1.0 temp 45", st)
	}
}

func TestView(t *testing.T) {
	rec := get(t, newTestHandler(t), "/api/v1/view")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var v map[string]json.RawMessage
	decodeBody(t, rec, &v)
	for _, key := range []string{"state", "alerts", "maintenance", "thresholds", "taken_at"} {
		if _, ok := v[key]; !ok {
			t.Errorf("view missing key %q", key)
		}
	}
}

func TestAlerts_RaisedByHotMotor(t *testing.T) {
	d := newTestDeps(t)
	d.Twin.Update(types.NewSnapshot(time.Now(), map[string]float64{
		types.MetricConveyorSpeed:    1.0,
		types.MetricMotorTemperature: 95,
		types.MetricVibrationLevel:   2.0,
		types.MetricMotorCurrent:     12,
	}))

	rec := get(t, New(d), "/api/v1/alerts")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var alerts []map[string]interface{}
	decodeBody(t, rec, &alerts)
	if len(alerts) == 0 {
		t.Fatal("expected at least one alert for a 95C motor")
	}
}

func TestActiveAlerts_NoNotifier(t *testing.T) {
	rec := get(t, newTestHandler(t), "/api/v1/alerts/active")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestAlertLog_InvalidLimit(t *testing.T) {
	rec := get(t, newTestHandler(t), "/api/v1/alerts/log?limit=abc")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMaintenance(t *testing.T) {
	rec := get(t, newTestHandler(t), "/api/v1/maintenance")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var p map[string]interface{}
	decodeBody(t, rec, &p)
	if _, ok := p["urgency"]; !ok {
		t.Errorf("prediction missing urgency: %v", p)
	}
}

func TestOEE(t *testing.T) {
	rec := get(t, newTestHandler(t), "/api/v1/oee")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var oee analytics.OEE
	decodeBody(t, rec, &oee)
	if oee.OEE < 0 || oee.OEE > 100 {
		t.Errorf("OEE = %.2f, want within [0, 100]", oee.OEE)
	}
}

func TestReport(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantHours  float64
	}{
		{"", http.StatusOK, 24},
		{"?hours=8", http.StatusOK, 8},
		{"?hours=x", http.StatusBadRequest, 0},
	}
	for _, tc := range tests {
		t.Run("query="+tc.query, func(t *testing.T) {
			rec := get(t, newTestHandler(t), "/api/v1/report"+tc.query)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			var r struct {
				PeriodHours float64 `json:"period_hours"`
			}
			decodeBody(t, rec, &r)
			if r.PeriodHours != tc.wantHours {
				t.Errorf("PeriodHours = %v, want %v", r.PeriodHours, tc.wantHours)
			}
		})
	}
}

func TestTrends_RejectsNonPositiveHours(t *testing.T) {
	rec := get(t, newTestHandler(t), "/api/v1/trends?hours=0")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTrends_InsufficientDataWithoutSeries(t *testing.T) {
	rec := get(t, newTestHandler(t), "/api/v1/trends")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var trends map[string]analytics.Trend
	decodeBody(t, rec, &trends)
	for metric, tr := range trends {
		if tr != analytics.TrendInsufficientData {
			t.Errorf("trend[%s] = %v, want insufficient data", metric, tr)
		}
	}
}

func TestReadings(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		rec := get(t, newTestHandler(t), "/api/v1/readings")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("default limit", func(t *testing.T) {
		d := newTestDeps(t)
		store := &fakeReadings{}
		d.Readings = store
		rec := get(t, New(d), "/api/v1/readings")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if store.limit != defaultReadingsLimit {
			t.Errorf("limit = %d, want %d", store.limit, defaultReadingsLimit)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("body = %q, want []", got)
		}
	})

	t.Run("store error", func(t *testing.T) {
		d := newTestDeps(t)
		d.Readings = &fakeReadings{err: errors.New("connection refused")}
		rec := get(t, New(d), "/api/v1/readings?limit=5")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})
}

// --- state changes -----------------------------------------------------------

func TestMode(t *testing.T) {
	d := newTestDeps(t)
	h := New(d)

	rec := send(t, h, http.MethodPost, "/api/v1/mode", `{"mode":"MAINTENANCE"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	var resp modeResponse
	decodeBody(t, rec, &resp)
	if resp.Previous != types.ModeNormal || resp.Mode != types.ModeMaintenance {
		t.Errorf("resp = %+v, want NORMAL -> MAINTENANCE", resp)
	}
	if got := d.Twin.State().Mode; got != types.ModeMaintenance {
		t.Errorf("twin mode = %q, want MAINTENANCE", got)
	}

	rec = send(t, h, http.MethodPost, "/api/v1/mode", `{"mode":"TURBO"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mode status = %d, want 400", rec.Code)
	}

	rec = get(t, h, "/api/v1/mode")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

func TestDefects(t *testing.T) {
	d := newTestDeps(t)
	h := New(d)

	rec := send(t, h, http.MethodPost, "/api/v1/defects", `{"count":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := d.Twin.State().DefectsCount; got != 3 {
		t.Errorf("DefectsCount = %d, want 3", got)
	}

	rec = send(t, h, http.MethodPost, "/api/v1/defects", `{"count":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative count status = %d, want 400", rec.Code)
	}
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	rec := send(t, newTestHandler(t), http.MethodPost, "/api/v1/defects", `{"cnt":3}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- scenarios ---------------------------------------------------------------

func TestQuickScenario(t *testing.T) {
	h := newTestHandler(t)

	rec := send(t, h, http.MethodPost, "/api/v1/scenarios/quick", `{"kind":"increase_speed","speed":1.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	var p types.Projection
	decodeBody(t, rec, &p)
	if p.Speed != 1.5 {
		t.Errorf("projected speed = %v, want 1.5", p.Speed)
	}

	rec = send(t, h, http.MethodPost, "/api/v1/scenarios/quick", `{"kind":"teleport"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d, want 400", rec.Code)
	}
}

func TestSpeedIncrease(t *testing.T) {
	d := newTestDeps(t)
	h := New(d)

	rec := send(t, h, http.MethodPost, "/api/v1/simulations/speed-increase", `{"target_speed":2.0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	var res types.SimulationResult
	decodeBody(t, rec, &res)
	if res.ID == "" {
		t.Error("result should carry an ID")
	}
	if got := res.Parameters.Extra["duration_minutes"]; got != defaultSpeedMinutes {
		t.Errorf("duration_minutes = %v, want default %d", got, defaultSpeedMinutes)
	}

	rec = send(t, h, http.MethodPost, "/api/v1/simulations/speed-increase", `{"target_speed":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero speed status = %d, want 400", rec.Code)
	}
}

func TestSpeedIncrease_OverflowingTargetRejected(t *testing.T) {
	d := newTestDeps(t)
	h := New(d)

	rec := send(t, h, http.MethodPost, "/api/v1/simulations/speed-increase", `{"target_speed":1e300}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body=%s)", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Error == "" {
		t.Error("error message should not be empty")
	}
	if n := len(d.Simulator.History(0)); n != 0 {
		t.Errorf("history has %d results, want 0", n)
	}
}

func TestJSONResp_UnencodableBody(t *testing.T) {
	rec := httptest.NewRecorder()
	jsonResp(rec, http.StatusOK, map[string]float64{"temperature": math.Inf(1)})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Error == "" {
		t.Error("error message should not be empty")
	}
}

func TestComponentFailure(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"default severity", `{"component":"motor"}`, http.StatusOK},
		{"explicit severity", `{"component":"bearing","severity":0.9}`, http.StatusOK},
		{"unknown component", `{"component":"flux_capacitor"}`, http.StatusBadRequest},
		{"severity out of range", `{"component":"sensor","severity":1.5}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := send(t, newTestHandler(t), http.MethodPost, "/api/v1/simulations/component-failure", tc.body)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body=%s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestWhatIf(t *testing.T) {
	rec := send(t, newTestHandler(t), http.MethodPost, "/api/v1/simulations/what-if",
		`{"name":"hot day","changes":{"motor_temperature":70},"duration_hours":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	var res types.SimulationResult
	decodeBody(t, rec, &res)
	if res.Parameters.MotorTemperature < 70 {
		t.Errorf("projected temperature = %.2f, want >= 70", res.Parameters.MotorTemperature)
	}
}

func TestMaintenanceImpact(t *testing.T) {
	h := newTestHandler(t)

	rec := send(t, h, http.MethodPost, "/api/v1/simulations/maintenance", `{"maintenance_type":"preventive"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}

	rec = send(t, h, http.MethodPost, "/api/v1/simulations/maintenance", `{"maintenance_type":"ritual"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type status = %d, want 400", rec.Code)
	}
}

func TestStressTest(t *testing.T) {
	rec := send(t, newTestHandler(t), http.MethodPost, "/api/v1/simulations/stress-test", `{"duration_minutes":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
}

func TestStressTest_CancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulations/stress-test", strings.NewReader(`{}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	newTestHandler(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSimulations_HistoryAndClear(t *testing.T) {
	h := newTestHandler(t)
	for i := 0; i < 3; i++ {
		send(t, h, http.MethodPost, "/api/v1/simulations/component-failure", `{"component":"motor"}`)
	}

	rec := get(t, h, "/api/v1/simulations?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var hist []types.SimulationResult
	decodeBody(t, rec, &hist)
	if len(hist) != 2 {
		t.Errorf("len(history) = %d, want 2", len(hist))
	}

	rec = send(t, h, http.MethodDelete, "/api/v1/simulations", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rec.Code)
	}
	hist = nil
	decodeBody(t, get(t, h, "/api/v1/simulations"), &hist)
	if len(hist) != 0 {
		t.Errorf("len(history) after clear = %d, want 0", len(hist))
	}

	rec = send(t, h, http.MethodPut, "/api/v1/simulations", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d, want 405", rec.Code)
	}
}
