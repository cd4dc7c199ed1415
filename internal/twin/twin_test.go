package twin

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/conveyortwin/conveyortwin/internal/scenario"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

func settings() Settings {
	return Settings{
		Thresholds:          types.DefaultThresholds(),
		MaxSpeed:            3.0,
		MaintenanceInterval: 168,
	}
}

// newTestTwin returns a Twin with a fixed clock and sequential alert IDs.
func newTestTwin(t *testing.T, s Settings) *Twin {
	t.Helper()
	tw, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n := 0
	tw.newID = func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
	tw.now = func() time.Time { return baseTime }
	return tw
}

func nominal() map[string]float64 {
	return map[string]float64{
		types.MetricConveyorSpeed:    1.5,
		types.MetricMotorTemperature: 60,
		types.MetricVibrationLevel:   3,
		types.MetricMotorCurrent:     10,
	}
}

func snapshot(readings map[string]float64) types.SensorSnapshot {
	return types.NewSnapshot(baseTime, readings)
}

func TestNew_RejectsInvalidSettings(t *testing.T) {
	s := settings()
	s.MaintenanceInterval = 0
	if _, err := New(s); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("err = %v, want ErrInvalidSettings", err)
	}
	s = settings()
	s.MaxSpeed = -1
	if _, err := New(s); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("err = %v, want ErrInvalidSettings", err)
	}
}

func TestNew_InitialState(t *testing.T) {
	tw := newTestTwin(t, settings())
	st := tw.State()
	if st.Mode != types.ModeNormal {
		t.Errorf("Mode = %v, want NORMAL", st.Mode)
	}
	if st.Efficiency != 100 {
		t.Errorf("Efficiency = %v, want 100", st.Efficiency)
	}
	if a := tw.Alerts(); len(a) != 0 {
		t.Errorf("Alerts = %v, want none", a)
	}
}

func TestUpdate_CriticalTemperatureRaisesSingleAlert(t *testing.T) {
	tw := newTestTwin(t, settings())
	r := nominal()
	r[types.MetricMotorTemperature] = 92
	tw.Update(snapshot(r))

	alerts := tw.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("Alerts = %v, want exactly one", alerts)
	}
	a := alerts[0]
	if a.Type != types.AlertCriticalTemperature || a.Severity != types.SeverityHigh {
		t.Errorf("alert = %v/%v, want CRITICAL_TEMPERATURE/HIGH", a.Type, a.Severity)
	}
	if a.ID != "alert-1" {
		t.Errorf("ID = %q, want alert-1", a.ID)
	}
	if a.Value != 92 {
		t.Errorf("Value = %v, want 92", a.Value)
	}
	if got := tw.State().Mode; got != types.ModeEmergency {
		t.Errorf("Mode = %v, want EMERGENCY", got)
	}
}

func TestUpdate_AlertsReplacedEachCycle(t *testing.T) {
	tw := newTestTwin(t, settings())
	r := nominal()
	r[types.MetricMotorTemperature] = 92
	tw.Update(snapshot(r))
	tw.Update(snapshot(nominal()))
	if a := tw.Alerts(); len(a) != 0 {
		t.Errorf("Alerts after nominal cycle = %v, want none", a)
	}
}

func TestUpdate_EfficiencyStaysInRange(t *testing.T) {
	tw := newTestTwin(t, settings())
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		tw.Update(snapshot(map[string]float64{
			types.MetricConveyorSpeed:    rng.Float64() * 5,
			types.MetricMotorTemperature: rng.Float64()*200 - 20,
			types.MetricVibrationLevel:   rng.Float64() * 30,
			types.MetricMotorCurrent:     rng.Float64() * 50,
		}))
		if eff := tw.State().Efficiency; eff < 60 || eff > 100 {
			t.Fatalf("iteration %d: Efficiency = %v out of [60, 100]", i, eff)
		}
	}
}

func TestUpdate_MissingReadingsKeepLastValue(t *testing.T) {
	tw := newTestTwin(t, settings())
	tw.Update(snapshot(nominal()))

	tw.Update(snapshot(map[string]float64{
		types.MetricConveyorSpeed: 1.5,
		types.MetricMotorCurrent:  10,
	}))
	st := tw.State()
	if st.MotorTemperature != 60 {
		t.Errorf("MotorTemperature = %v, want last measured 60", st.MotorTemperature)
	}
	if st.VibrationLevel != 3 {
		t.Errorf("VibrationLevel = %v, want last measured 3", st.VibrationLevel)
	}
	want := []string{types.MetricMotorTemperature, types.MetricVibrationLevel}
	if diff := cmp.Diff(want, st.Missing); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
	if !st.Degraded() {
		t.Error("Degraded() = false with missing readings")
	}

	tw.Update(snapshot(nominal()))
	if st := tw.State(); st.Degraded() {
		t.Errorf("Missing = %v after full snapshot, want none", st.Missing)
	}
}

func TestUpdate_NaNTreatedAsMissing(t *testing.T) {
	tw := newTestTwin(t, settings())
	tw.Update(snapshot(nominal()))
	r := nominal()
	r[types.MetricVibrationLevel] = math.NaN()
	tw.Update(snapshot(r))
	st := tw.State()
	if st.VibrationLevel != 3 {
		t.Errorf("VibrationLevel = %v, want 3", st.VibrationLevel)
	}
	if len(st.Missing) != 1 || st.Missing[0] != types.MetricVibrationLevel {
		t.Errorf("Missing = %v", st.Missing)
	}
}

func TestUpdate_Counters(t *testing.T) {
	tw := newTestTwin(t, settings())
	r := nominal()
	r[types.MetricConveyorSpeed] = 25 // floor(25·0.1) = 2 items per cycle
	for i := 0; i < 3; i++ {
		tw.Update(snapshot(r))
	}
	st := tw.State()
	if st.ItemsProcessed != 6 {
		t.Errorf("ItemsProcessed = %d, want 6", st.ItemsProcessed)
	}
	if !almostEqual(st.UptimeHours, 3*DefaultCycleHours, 1e-12) {
		t.Errorf("UptimeHours = %v, want %v", st.UptimeHours, 3*DefaultCycleHours)
	}

	// Slow belt moves no whole items.
	tw.Update(snapshot(nominal()))
	if got := tw.State().ItemsProcessed; got != 6 {
		t.Errorf("ItemsProcessed = %d after slow cycle, want 6", got)
	}
}

func TestUpdate_CountersNeverDecrease(t *testing.T) {
	tw := newTestTwin(t, settings())
	r := nominal()
	r[types.MetricConveyorSpeed] = -30
	tw.Update(snapshot(r))
	if got := tw.State().ItemsProcessed; got != 0 {
		t.Errorf("ItemsProcessed = %d with reverse speed, want 0", got)
	}
}

func TestUpdate_MaintenanceDueSwitchesMode(t *testing.T) {
	s := settings()
	s.CycleHours = 1
	s.MaintenanceInterval = 2
	tw := newTestTwin(t, s)
	for i := 0; i < 2; i++ {
		tw.Update(snapshot(nominal()))
	}
	if got := tw.State().Mode; got != types.ModeNormal {
		t.Fatalf("Mode = %v at uptime 2, want NORMAL", got)
	}
	tw.Update(snapshot(nominal()))
	if got := tw.State().Mode; got != types.ModeMaintenance {
		t.Errorf("Mode = %v at uptime 3, want MAINTENANCE", got)
	}
	pred := tw.PredictMaintenance()
	if !pred.Needed || pred.Urgency != types.UrgencyMedium {
		t.Errorf("prediction = %+v, want routine MEDIUM", pred)
	}
}

func TestUpdate_BearingSignature(t *testing.T) {
	tw := newTestTwin(t, settings())
	// Efficiency: 100 - 0.5·8 - 2·1.5 - 1.5·10 = 78
	tw.Update(snapshot(map[string]float64{
		types.MetricConveyorSpeed:    1.5,
		types.MetricMotorTemperature: 88,
		types.MetricVibrationLevel:   6.5,
		types.MetricMotorCurrent:     25,
	}))
	if got := tw.State().Efficiency; !almostEqual(got, 78, 1e-9) {
		t.Fatalf("Efficiency = %v, want 78", got)
	}
	pred := tw.PredictMaintenance()
	if pred.Urgency != types.UrgencyHigh {
		t.Errorf("Urgency = %v, want HIGH", pred.Urgency)
	}
	if diff := cmp.Diff([]string{"check balancing", "replace bearings"}, pred.RecommendedActions); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_EmergencyStopReading(t *testing.T) {
	tw := newTestTwin(t, settings())
	r := nominal()
	r[types.MetricEmergencyStop] = 1
	tw.Update(snapshot(r))
	if got := tw.State().Mode; got != types.ModeEmergency {
		t.Errorf("Mode = %v, want EMERGENCY", got)
	}
}

func TestSetMode_ClearsStickyEmergency(t *testing.T) {
	tw := newTestTwin(t, settings())
	r := nominal()
	r[types.MetricVibrationLevel] = 8
	tw.Update(snapshot(r))
	tw.Update(snapshot(nominal()))
	if got := tw.State().Mode; got != types.ModeEmergency {
		t.Fatalf("Mode = %v after recovery, want EMERGENCY held", got)
	}

	prev, err := tw.SetMode(types.ModeNormal)
	if err != nil {
		t.Fatal(err)
	}
	if prev != types.ModeEmergency {
		t.Errorf("prev = %v, want EMERGENCY", prev)
	}
	tw.Update(snapshot(nominal()))
	if got := tw.State().Mode; got != types.ModeNormal {
		t.Errorf("Mode = %v, want NORMAL", got)
	}

	if _, err := tw.SetMode("PANIC"); err == nil {
		t.Error("SetMode(PANIC) = nil error")
	}
}

func TestSetMode_ResumeAfterMaintenanceDueStaysNormal(t *testing.T) {
	s := settings()
	s.CycleHours = 1
	s.MaintenanceInterval = 2
	tw := newTestTwin(t, s)
	for i := 0; i < 3; i++ {
		tw.Update(snapshot(nominal()))
	}
	if got := tw.State().Mode; got != types.ModeMaintenance {
		t.Fatalf("Mode = %v at uptime 3, want MAINTENANCE", got)
	}

	if _, err := tw.SetMode(types.ModeNormal); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		tw.Update(snapshot(nominal()))
		if got := tw.State().Mode; got != types.ModeNormal {
			t.Fatalf("Mode = %v on update %d after resume, want NORMAL", got, i+1)
		}
	}
	if !tw.PredictMaintenance().Needed {
		t.Error("prediction cleared by resume, want still needed")
	}
}

func TestRecordDefects(t *testing.T) {
	tw := newTestTwin(t, settings())
	if err := tw.RecordDefects(3); err != nil {
		t.Fatal(err)
	}
	if err := tw.RecordDefects(-1); err == nil {
		t.Error("negative defects accepted")
	}
	if got := tw.State().DefectsCount; got != 3 {
		t.Errorf("DefectsCount = %d, want 3", got)
	}
}

func TestSimulateQuickScenario_DoesNotMutateState(t *testing.T) {
	tw := newTestTwin(t, settings())
	tw.Update(snapshot(nominal()))
	before := tw.State()

	p, err := tw.SimulateQuickScenario(scenario.KindIncreaseSpeed, scenario.QuickParams{Speed: 2.5})
	if err != nil {
		t.Fatal(err)
	}
	if p.Speed != 2.5 {
		t.Errorf("projected Speed = %v, want 2.5", p.Speed)
	}
	if _, err := tw.SimulateQuickScenario(scenario.KindComponentFailure,
		scenario.QuickParams{Component: scenario.ComponentBearing, Severity: 1}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before, tw.State()); diff != "" {
		t.Errorf("state mutated (-before +after):\n%s", diff)
	}
	if _, err := tw.SimulateQuickScenario("meteor", scenario.QuickParams{}); !errors.Is(err, scenario.ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestReconfigure(t *testing.T) {
	tw := newTestTwin(t, settings())
	s := settings()
	s.Thresholds.MotorTemperature = types.Limit{Warning: 50, Critical: 55}
	if err := tw.Reconfigure(s); err != nil {
		t.Fatal(err)
	}
	tw.Update(snapshot(nominal()))
	if a := tw.Alerts(); len(a) != 1 || a[0].Type != types.AlertCriticalTemperature {
		t.Errorf("Alerts = %v, want CRITICAL_TEMPERATURE under new limits", a)
	}

	bad := settings()
	bad.MaintenanceInterval = -1
	if err := tw.Reconfigure(bad); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("err = %v, want ErrInvalidSettings", err)
	}
}

func TestBaseline_ReflectsReconfigure(t *testing.T) {
	tw := newTestTwin(t, settings())
	tw.Update(snapshot(nominal()))
	s := settings()
	s.MaxSpeed = 5
	s.Thresholds.VibrationLevel = types.Limit{Warning: 4, Critical: 6}
	if err := tw.Reconfigure(s); err != nil {
		t.Fatal(err)
	}

	st, lim := tw.Baseline()
	if lim.MaxSpeed != 5 || lim.Thresholds != s.Thresholds {
		t.Errorf("limits = %+v, want MaxSpeed 5 and reloaded thresholds", lim)
	}
	if st.Speed != 1.5 || st.UpdatedAt.IsZero() {
		t.Errorf("state = %+v, want last update", st)
	}
}

func TestView_Consistent(t *testing.T) {
	tw := newTestTwin(t, settings())
	r := nominal()
	r[types.MetricMotorTemperature] = 95
	tw.Update(snapshot(r))
	v := tw.View()
	if len(v.Alerts) != 1 {
		t.Errorf("View alerts = %v", v.Alerts)
	}
	if v.State.MotorTemperature != 95 {
		t.Errorf("View state temperature = %v", v.State.MotorTemperature)
	}
	if !v.TakenAt.Equal(baseTime) {
		t.Errorf("TakenAt = %v", v.TakenAt)
	}

	// Copies must not alias internal state.
	v.Alerts[0].Message = "edited"
	if tw.Alerts()[0].Message == "edited" {
		t.Error("View alerts alias internal slice")
	}
}

func TestTwin_ConcurrentAccess(t *testing.T) {
	tw := newTestTwin(t, settings())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tw.Update(snapshot(nominal()))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tw.View()
				_ = tw.PredictMaintenance()
				_, _ = tw.Baseline()
			}
		}()
	}
	wg.Wait()
	if got := tw.State().UptimeHours; !almostEqual(got, 400*DefaultCycleHours, 1e-9) {
		t.Errorf("UptimeHours = %v, want %v", got, 400*DefaultCycleHours)
	}
}
