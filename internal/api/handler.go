package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/conveyortwin/conveyortwin/internal/analytics"
	"github.com/conveyortwin/conveyortwin/internal/notify"
	"github.com/conveyortwin/conveyortwin/internal/persist"
	"github.com/conveyortwin/conveyortwin/internal/scenario"
	"github.com/conveyortwin/conveyortwin/internal/simulator"
	"github.com/conveyortwin/conveyortwin/internal/twin"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// Request defaults for omitted fields.
const (
	defaultSpeedMinutes  = 60
	defaultSeverity      = 0.5
	defaultMaintHours    = 8
	defaultStressMinutes = 30
	defaultHistoryLimit  = 10
	defaultReadingsLimit = 100
	defaultPeriodHours   = 24
	maxBodyBytes         = 1 << 20
)

// ReadingStore supplies persisted readings. *persist.SQLSink satisfies it.
type ReadingStore interface {
	RecentReadings(ctx context.Context, limit int) ([]persist.Reading, error)
}

// Deps are the components the API serves. Notifier and Readings are
// optional.
type Deps struct {
	Twin      *twin.Twin
	Analytics *analytics.Engine
	Simulator *simulator.Simulator
	Notifier  *notify.Notifier
	Readings  ReadingStore
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	Deps
	mux *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(d Deps) http.Handler {
	h := &Handler{Deps: d, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/state", h.state)
	h.mux.HandleFunc("/api/v1/view", h.view)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/alerts/active", h.activeAlerts)
	h.mux.HandleFunc("/api/v1/alerts/log", h.alertLog)
	h.mux.HandleFunc("/api/v1/maintenance", h.maintenance)
	h.mux.HandleFunc("/api/v1/oee", h.oee)
	h.mux.HandleFunc("/api/v1/report", h.report)
	h.mux.HandleFunc("/api/v1/trends", h.trends)
	h.mux.HandleFunc("/api/v1/readings", h.readings)
	h.mux.HandleFunc("/api/v1/mode", h.mode)
	h.mux.HandleFunc("/api/v1/defects", h.defects)
	h.mux.HandleFunc("/api/v1/scenarios/quick", h.quick)
	h.mux.HandleFunc("/api/v1/simulations", h.simulations)
	h.mux.HandleFunc("/api/v1/simulations/speed-increase", h.speedIncrease)
	h.mux.HandleFunc("/api/v1/simulations/component-failure", h.componentFailure)
	h.mux.HandleFunc("/api/v1/simulations/what-if", h.whatIf)
	h.mux.HandleFunc("/api/v1/simulations/maintenance", h.maintenanceImpact)
	h.mux.HandleFunc("/api/v1/simulations/stress-test", h.stressTest)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- read endpoints ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	v := h.Twin.View()
	resp := HealthResponse{
		Status:      "ok",
		Mode:        v.State.Mode,
		Degraded:    v.State.Degraded(),
		Missing:     v.State.Missing,
		AlertCount:  len(v.Alerts),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if resp.Missing == nil {
		resp.Missing = []string{}
	}
	if !v.State.UpdatedAt.IsZero() {
		at := v.State.UpdatedAt.UTC()
		resp.UpdatedAt = &at
	}
	if v.State.Mode == types.ModeEmergency {
		resp.Status = "emergency"
	} else if resp.Degraded {
		resp.Status = "degraded"
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.Twin.State())
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.Twin.View())
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.Twin.Alerts())
}

func (h *Handler) activeAlerts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if h.Notifier == nil {
		jsonResp(w, http.StatusOK, []notify.Event{})
		return
	}
	jsonResp(w, http.StatusOK, h.Notifier.Active())
}

func (h *Handler) alertLog(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	limit, ok := intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	if h.Notifier == nil {
		jsonResp(w, http.StatusOK, []notify.Event{})
		return
	}
	jsonResp(w, http.StatusOK, h.Notifier.Resolved(limit))
}

func (h *Handler) maintenance(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.Twin.PredictMaintenance())
}

func (h *Handler) oee(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, h.Analytics.CalculateOEE())
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	hours, ok := floatQuery(w, r, "hours", defaultPeriodHours)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, h.Analytics.GenerateReport(hours))
}

func (h *Handler) trends(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	hours, ok := floatQuery(w, r, "hours", defaultPeriodHours)
	if !ok {
		return
	}
	if hours <= 0 {
		jsonErr(w, http.StatusBadRequest, "hours must be positive")
		return
	}
	jsonResp(w, http.StatusOK, h.Analytics.Trends(time.Duration(hours*float64(time.Hour))))
}

func (h *Handler) readings(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if h.Readings == nil {
		jsonErr(w, http.StatusNotFound, "storage not configured")
		return
	}
	limit, ok := intQuery(w, r, "limit", defaultReadingsLimit)
	if !ok {
		return
	}
	out, err := h.Readings.RecentReadings(r.Context(), limit)
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}
	if out == nil {
		out = []persist.Reading{}
	}
	jsonResp(w, http.StatusOK, out)
}

// --- state changes ----------------------------------------------------------

func (h *Handler) mode(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req modeRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := types.ParseMode(req.Mode)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	prev, err := h.Twin.SetMode(m)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, modeResponse{Previous: prev, Mode: m})
}

func (h *Handler) defects(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req defectsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Twin.RecordDefects(req.Count); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, h.Twin.State())
}

// --- scenarios --------------------------------------------------------------

func (h *Handler) quick(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req quickRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Twin.SimulateQuickScenario(req.Kind, req.QuickParams)
	if err != nil {
		scenarioErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, p)
}

func (h *Handler) simulations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, ok := intQuery(w, r, "limit", defaultHistoryLimit)
		if !ok {
			return
		}
		jsonResp(w, http.StatusOK, h.Simulator.History(limit))
	case http.MethodDelete:
		h.Simulator.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) speedIncrease(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req speedIncreaseRequest
	if !decode(w, r, &req) {
		return
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = defaultSpeedMinutes
	}
	res, err := h.Simulator.SimulateSpeedIncrease(req.TargetSpeed, req.DurationMinutes)
	if err != nil {
		scenarioErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, res)
}

func (h *Handler) componentFailure(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req componentFailureRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := scenario.ParseComponent(req.Component)
	if err != nil {
		scenarioErr(w, err)
		return
	}
	severity := defaultSeverity
	if req.Severity != nil {
		severity = *req.Severity
	}
	res, err := h.Simulator.SimulateComponentFailure(c, severity)
	if err != nil {
		scenarioErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, res)
}

func (h *Handler) whatIf(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req scenario.WhatIfConfig
	if !decode(w, r, &req) {
		return
	}
	jsonResp(w, http.StatusOK, h.Simulator.SimulateWhatIf(req))
}

func (h *Handler) maintenanceImpact(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req maintenanceRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := scenario.ParseMaintenanceType(req.MaintenanceType)
	if err != nil {
		scenarioErr(w, err)
		return
	}
	if req.DurationHours == 0 {
		req.DurationHours = defaultMaintHours
	}
	res, err := h.Simulator.SimulateMaintenanceImpact(kind, req.DurationHours)
	if err != nil {
		scenarioErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, res)
}

func (h *Handler) stressTest(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req stressRequest
	if !decode(w, r, &req) {
		return
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = defaultStressMinutes
	}
	res, err := h.Simulator.RunStressTest(r.Context(), req.DurationMinutes)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			jsonErr(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		scenarioErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, res)
}

// --- helpers ----------------------------------------------------------------

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

func floatQuery(w http.ResponseWriter, r *http.Request, name string, def float64) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return f, true
}

// scenarioErr maps invalid scenario input to 400 and anything else to 500.
func scenarioErr(w http.ResponseWriter, err error) {
	for _, target := range []error{
		scenario.ErrUnknownComponent,
		scenario.ErrInvalidSeverity,
		scenario.ErrUnknownMaintenance,
		scenario.ErrInvalidDuration,
		scenario.ErrInvalidSpeed,
		scenario.ErrUnknownKind,
	} {
		if errors.Is(err, target) {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	jsonErr(w, http.StatusInternalServerError, err.Error())
}

// jsonResp encodes v before writing the status so an unencodable body
// becomes a 500 instead of a truncated 200.
func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
		buf.Reset()
		json.NewEncoder(&buf).Encode(errorResponse{Error: "response could not be encoded"}) //nolint:errcheck
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes()) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
