package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/conveyortwin/conveyortwin/internal/scenario"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeBaseline is a fixed Baseline.
type fakeBaseline struct {
	mu    sync.Mutex
	state types.OperationalState
	reads int
}

func (f *fakeBaseline) Baseline() (types.OperationalState, scenario.Limits) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.state.Clone(), scenario.Limits{Thresholds: types.DefaultThresholds(), MaxSpeed: 3.0}
}

func newBaseline() *fakeBaseline {
	return &fakeBaseline{state: types.OperationalState{
		Speed:            1.0,
		MotorTemperature: 40,
		VibrationLevel:   2.0,
		MotorCurrent:     10,
		Efficiency:       95,
		Mode:             types.ModeNormal,
	}}
}

// newTestSimulator returns a Simulator with a stepping clock and sequential IDs.
func newTestSimulator(base Baseline, opts Options) *Simulator {
	s := New(base, opts)
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("sim-%d", n)
	}
	tick := 0
	s.now = func() time.Time {
		tick++
		return baseTime.Add(time.Duration(tick) * time.Millisecond)
	}
	return s
}

func TestSimulateSpeedIncrease_RecordsResult(t *testing.T) {
	sim := newTestSimulator(newBaseline(), Options{})
	res, err := sim.SimulateSpeedIncrease(2.0, 60)
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "sim-1" {
		t.Errorf("ID = %q, want sim-1", res.ID)
	}
	if res.ScenarioName != "speed_increase" {
		t.Errorf("ScenarioName = %q", res.ScenarioName)
	}
	if !res.Success {
		t.Errorf("Success = false, warnings %v", res.Warnings)
	}
	if res.Duration != time.Millisecond {
		t.Errorf("Duration = %v, want 1ms", res.Duration)
	}
	h := sim.History(0)
	if len(h) != 1 || h[0].ID != res.ID {
		t.Errorf("History = %+v, want the one result", h)
	}
}

func TestSimulate_InvalidInputNotRecorded(t *testing.T) {
	sim := newTestSimulator(newBaseline(), Options{})
	if _, err := sim.SimulateComponentFailure("gearbox", 0.5); !errors.Is(err, scenario.ErrUnknownComponent) {
		t.Errorf("err = %v, want ErrUnknownComponent", err)
	}
	if _, err := sim.SimulateMaintenanceImpact("reactive", 1); !errors.Is(err, scenario.ErrUnknownMaintenance) {
		t.Errorf("err = %v, want ErrUnknownMaintenance", err)
	}
	if _, err := sim.SimulateSpeedIncrease(-1, 1); !errors.Is(err, scenario.ErrInvalidSpeed) {
		t.Errorf("err = %v, want ErrInvalidSpeed", err)
	}
	if n := len(sim.History(0)); n != 0 {
		t.Errorf("History len = %d after invalid input, want 0", n)
	}
}

func TestAllScenarios(t *testing.T) {
	sim := newTestSimulator(newBaseline(), Options{})
	ctx := context.Background()

	if _, err := sim.SimulateSpeedIncrease(2.0, 30); err != nil {
		t.Fatal(err)
	}
	if _, err := sim.SimulateComponentFailure(scenario.ComponentBearing, 0.8); err != nil {
		t.Fatal(err)
	}
	sim.SimulateWhatIf(scenario.WhatIfConfig{Name: "night_shift", DurationHours: 8})
	if _, err := sim.SimulateMaintenanceImpact(scenario.MaintenancePredictive, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := sim.RunStressTest(ctx, 30); err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, r := range sim.History(0) {
		names = append(names, r.ScenarioName)
	}
	want := []string{"speed_increase", "failure_bearing", "night_shift", "maintenance_predictive", "stress_test"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("history order (-want +got):\n%s", diff)
	}
}

func TestHistory_Bounded(t *testing.T) {
	sim := newTestSimulator(newBaseline(), Options{HistorySize: 3})
	for i := 0; i < 5; i++ {
		sim.SimulateWhatIf(scenario.WhatIfConfig{Name: fmt.Sprintf("w%d", i)})
	}
	h := sim.History(0)
	if len(h) != 3 {
		t.Fatalf("History len = %d, want 3", len(h))
	}
	if h[0].ScenarioName != "w2" || h[2].ScenarioName != "w4" {
		t.Errorf("History = %s..%s, want w2..w4", h[0].ScenarioName, h[2].ScenarioName)
	}
	if last := sim.History(1); len(last) != 1 || last[0].ScenarioName != "w4" {
		t.Errorf("History(1) = %+v", last)
	}
}

func TestClear(t *testing.T) {
	sim := newTestSimulator(newBaseline(), Options{})
	sim.SimulateWhatIf(scenario.WhatIfConfig{})
	sim.Clear()
	if h := sim.History(0); len(h) != 0 {
		t.Errorf("History after Clear = %v", h)
	}
}

func TestSimulations_Deterministic(t *testing.T) {
	a := New(newBaseline(), Options{})
	b := New(newBaseline(), Options{})
	ra, err := a.SimulateSpeedIncrease(2.4, 60)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := b.SimulateSpeedIncrease(2.4, 60)
	if err != nil {
		t.Fatal(err)
	}
	opts := cmpopts.IgnoreFields(types.SimulationResult{}, "ID", "Timestamp", "Duration")
	if diff := cmp.Diff(ra, rb, opts); diff != "" {
		t.Errorf("results differ for identical baselines (-a +b):\n%s", diff)
	}
}

func TestRunStressTest_CancelledNotRecorded(t *testing.T) {
	sim := newTestSimulator(newBaseline(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.RunStressTest(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n := len(sim.History(0)); n != 0 {
		t.Errorf("History len = %d, want 0", n)
	}
}

func TestOnResult_ReceivesCopy(t *testing.T) {
	var got []types.SimulationResult
	sim := newTestSimulator(newBaseline(), Options{OnResult: func(r types.SimulationResult) {
		r.Warnings = append(r.Warnings, "tampered")
		got = append(got, r)
	}})
	res, err := sim.SimulateComponentFailure(scenario.ComponentMotor, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != res.ID {
		t.Fatalf("OnResult calls = %+v", got)
	}
	if h := sim.History(0); len(h[0].Warnings) != len(res.Warnings) {
		t.Errorf("history warnings changed by observer: %v", h[0].Warnings)
	}
}

func TestHistory_ReturnsCopies(t *testing.T) {
	sim := newTestSimulator(newBaseline(), Options{})
	if _, err := sim.SimulateMaintenanceImpact(scenario.MaintenancePreventive, 2); err != nil {
		t.Fatal(err)
	}
	h := sim.History(0)
	h[0].Parameters.Extra["cost"] = -1
	if sim.History(0)[0].Parameters.Extra["cost"] == -1 {
		t.Error("History shares Extra map with internal state")
	}
}

func TestSimulations_ReadBaselineOnce(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Simulator) error
	}{
		{"speed increase", func(s *Simulator) error {
			_, err := s.SimulateSpeedIncrease(2.0, 60)
			return err
		}},
		{"component failure", func(s *Simulator) error {
			_, err := s.SimulateComponentFailure(scenario.ComponentMotor, 0.5)
			return err
		}},
		{"what if", func(s *Simulator) error {
			s.SimulateWhatIf(scenario.WhatIfConfig{})
			return nil
		}},
		{"maintenance impact", func(s *Simulator) error {
			_, err := s.SimulateMaintenanceImpact(scenario.MaintenancePreventive, 8)
			return err
		}},
		{"stress test", func(s *Simulator) error {
			_, err := s.RunStressTest(context.Background(), 30)
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base := newBaseline()
			sim := newTestSimulator(base, Options{})
			if err := tc.run(sim); err != nil {
				t.Fatal(err)
			}
			if base.reads != 1 {
				t.Errorf("baseline read %d times, want 1", base.reads)
			}
		})
	}
}
