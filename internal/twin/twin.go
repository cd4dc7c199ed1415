package twin

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conveyortwin/conveyortwin/internal/scenario"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// DefaultCycleHours is the uptime credited per update: one second.
const DefaultCycleHours = 0.0002778

// itemsPerSpeed converts belt speed into items moved per update.
const itemsPerSpeed = 0.1

// ErrInvalidSettings is returned by New and Reconfigure for unusable limits.
var ErrInvalidSettings = errors.New("twin: invalid settings")

// Settings are the configured limits the twin evaluates readings against.
type Settings struct {
	Thresholds          types.Thresholds
	MaxSpeed            float64
	MaintenanceInterval float64

	// CycleHours is added to uptime on every update. Zero means
	// DefaultCycleHours.
	CycleHours float64
}

func (s Settings) validate() error {
	if s.MaxSpeed <= 0 {
		return fmt.Errorf("%w: max speed must be positive", ErrInvalidSettings)
	}
	if s.MaintenanceInterval <= 0 {
		return fmt.Errorf("%w: maintenance interval must be positive", ErrInvalidSettings)
	}
	return nil
}

// View is a consistent snapshot of the twin taken under one lock.
type View struct {
	State       types.OperationalState      `json:"state"`
	Alerts      []types.Alert               `json:"alerts"`
	Maintenance types.MaintenancePrediction `json:"maintenance"`
	Thresholds  types.Thresholds            `json:"thresholds"`
	TakenAt     time.Time                   `json:"taken_at"`
}

// Twin holds the conveyor's operational state and the alerts raised by the
// most recent update.
//
// All exported methods are safe for concurrent use. Readers always receive
// copies.
type Twin struct {
	mu       sync.RWMutex
	settings Settings
	state    types.OperationalState
	alerts   []types.Alert

	// lastPred is the maintenance prediction of the previous update.
	lastPred types.MaintenancePrediction

	newID func() string
	now   func() time.Time
}

// New returns a Twin in NORMAL mode with efficiency 100.
func New(s Settings) (*Twin, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.CycleHours <= 0 {
		s.CycleHours = DefaultCycleHours
	}
	return &Twin{
		settings: s,
		state: types.OperationalState{
			Efficiency: EfficiencyCeiling,
			Mode:       types.ModeNormal,
		},
		alerts: []types.Alert{},
		newID:  uuid.NewString,
		now:    time.Now,
	}, nil
}

// Update merges snap into the state, then recomputes efficiency, replaces
// the active alert set, advances the counters and applies mode transitions.
//
// A reading absent from snap, or one that is NaN or infinite, leaves the
// corresponding field at its last measured value and is listed in
// State.Missing.
func (t *Twin) Update(snap types.SensorSnapshot) {
	at := snap.Timestamp
	if at.IsZero() {
		at = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st := &t.state
	var missing []string
	for _, m := range types.StateMetrics {
		v, ok := snap.Value(m)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			missing = append(missing, m)
			continue
		}
		switch m {
		case types.MetricConveyorSpeed:
			st.Speed = v
		case types.MetricMotorTemperature:
			st.MotorTemperature = v
		case types.MetricVibrationLevel:
			st.VibrationLevel = v
		case types.MetricMotorCurrent:
			st.MotorCurrent = v
		}
	}
	slices.Sort(missing)
	if !slices.Equal(missing, st.Missing) && len(missing) > 0 {
		slog.Warn("twin: readings missing, keeping last measured values", "metrics", missing)
	}
	st.Missing = missing

	th := t.settings.Thresholds
	st.Efficiency = Efficiency(*st, th)

	alerts := DetectAnomalies(*st, th, at)
	for i := range alerts {
		alerts[i].ID = t.newID()
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	t.alerts = alerts

	st.UptimeHours += t.settings.CycleHours
	if st.Speed > 0 {
		st.ItemsProcessed += int64(math.Floor(st.Speed * itemsPerSpeed))
	}

	estop, _ := snap.Value(types.MetricEmergencyStop)
	pred := PredictMaintenance(*st, t.settings.MaintenanceInterval)
	next := NextMode(st.Mode, alerts, pred, t.lastPred, estop > 0)
	t.lastPred = pred
	if next != st.Mode {
		slog.Warn("twin: operating mode changed",
			"from", st.Mode, "to", next, "alerts", len(alerts), "maintenance_needed", pred.Needed)
		st.Mode = next
	}
	st.UpdatedAt = at
}

// State returns a copy of the current operational state.
func (t *Twin) State() types.OperationalState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// Alerts returns a copy of the alerts raised by the last update.
func (t *Twin) Alerts() []types.Alert {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return types.CloneAlerts(t.alerts)
}

// View returns state, alerts and the maintenance prediction as of one
// instant.
func (t *Twin) View() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return View{
		State:       t.state.Clone(),
		Alerts:      types.CloneAlerts(t.alerts),
		Maintenance: PredictMaintenance(t.state, t.settings.MaintenanceInterval),
		Thresholds:  t.settings.Thresholds,
		TakenAt:     t.now(),
	}
}

// PredictMaintenance evaluates the maintenance decision table against the
// current state.
func (t *Twin) PredictMaintenance() types.MaintenancePrediction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return PredictMaintenance(t.state, t.settings.MaintenanceInterval)
}

// SimulateQuickScenario projects a shortcut scenario from a copy of the
// current state. Live state is not modified.
func (t *Twin) SimulateQuickScenario(kind scenario.Kind, p scenario.QuickParams) (types.Projection, error) {
	base, lim := t.Baseline()
	out, err := scenario.Quick(kind, base, p, lim)
	if err != nil {
		return types.Projection{}, err
	}
	return out.Projection, nil
}

// SetMode applies an operator mode change and returns the previous mode.
// This is the only way to leave EMERGENCY or MAINTENANCE.
func (t *Twin) SetMode(m types.Mode) (types.Mode, error) {
	if _, err := types.ParseMode(string(m)); err != nil {
		return "", fmt.Errorf("twin: set mode: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.state.Mode
	if prev != m {
		slog.Info("twin: operating mode set by operator", "from", prev, "to", m)
		t.state.Mode = m
	}
	return prev, nil
}

// RecordDefects adds n defective items reported by inspection.
func (t *Twin) RecordDefects(n int64) error {
	if n < 0 {
		return fmt.Errorf("twin: record defects: negative count %d", n)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.DefectsCount += n
	return nil
}

// Settings returns the active limits.
func (t *Twin) Settings() Settings {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.settings
}

// Reconfigure swaps in new limits. They take effect on the next update.
func (t *Twin) Reconfigure(s Settings) error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.CycleHours <= 0 {
		s.CycleHours = DefaultCycleHours
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings = s
	slog.Info("twin: settings reloaded",
		"max_speed", s.MaxSpeed, "maintenance_interval", s.MaintenanceInterval)
	return nil
}

// Baseline returns a copy of the state and the bounds scenarios are judged
// against, both as of one instant.
func (t *Twin) Baseline() (types.OperationalState, scenario.Limits) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone(), scenario.Limits{Thresholds: t.settings.Thresholds, MaxSpeed: t.settings.MaxSpeed}
}
