package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conveyortwin/conveyortwin/internal/ring"
	"github.com/conveyortwin/conveyortwin/internal/scenario"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// DefaultHistorySize bounds the result history when Options leave it unset.
const DefaultHistorySize = 100

// DefaultMaintenanceBaseCost is the cost of one preventive maintenance.
const DefaultMaintenanceBaseCost = 1000.0

// Baseline supplies the live state and the limits it is judged against,
// read together so a concurrent reconfigure cannot split them.
// *twin.Twin satisfies it.
type Baseline interface {
	Baseline() (types.OperationalState, scenario.Limits)
}

// Options configure a Simulator.
type Options struct {
	HistorySize         int
	MaintenanceBaseCost float64

	// OnResult, when set, receives every recorded result outside the
	// simulator's lock.
	OnResult func(types.SimulationResult)
}

// Simulator evaluates scenarios and records their results.
//
// All exported methods are safe for concurrent use.
type Simulator struct {
	base     Baseline
	baseCost float64
	onResult func(types.SimulationResult)

	mu      sync.Mutex
	history *ring.Buffer[types.SimulationResult]

	newID func() string
	now   func() time.Time
}

// New returns a Simulator reading from base.
func New(base Baseline, opts Options) *Simulator {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.MaintenanceBaseCost <= 0 {
		opts.MaintenanceBaseCost = DefaultMaintenanceBaseCost
	}
	return &Simulator{
		base:     base,
		baseCost: opts.MaintenanceBaseCost,
		onResult: opts.OnResult,
		history:  ring.New[types.SimulationResult](opts.HistorySize),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// SimulateSpeedIncrease projects running at target m/s for durationMinutes.
func (s *Simulator) SimulateSpeedIncrease(target, durationMinutes float64) (types.SimulationResult, error) {
	start := s.now()
	st, lim := s.base.Baseline()
	out, err := scenario.SpeedIncrease(st, target, durationMinutes, lim)
	if err != nil {
		return types.SimulationResult{}, fmt.Errorf("simulator: speed increase: %w", err)
	}
	return s.record(start, out), nil
}

// SimulateComponentFailure projects a failure of c at the given severity.
func (s *Simulator) SimulateComponentFailure(c scenario.Component, severity float64) (types.SimulationResult, error) {
	start := s.now()
	st, _ := s.base.Baseline()
	out, err := scenario.ComponentFailure(st, c, severity)
	if err != nil {
		return types.SimulationResult{}, fmt.Errorf("simulator: component failure: %w", err)
	}
	return s.record(start, out), nil
}

// SimulateWhatIf evaluates a free-form hypothetical.
func (s *Simulator) SimulateWhatIf(cfg scenario.WhatIfConfig) types.SimulationResult {
	start := s.now()
	st, lim := s.base.Baseline()
	out := scenario.WhatIf(st, cfg, lim.Thresholds)
	return s.record(start, out)
}

// SimulateMaintenanceImpact projects the state after maintenance of kind.
func (s *Simulator) SimulateMaintenanceImpact(kind scenario.MaintenanceType, durationHours float64) (types.SimulationResult, error) {
	start := s.now()
	st, _ := s.base.Baseline()
	out, err := scenario.MaintenanceImpact(st, kind, durationHours, s.baseCost)
	if err != nil {
		return types.SimulationResult{}, fmt.Errorf("simulator: maintenance impact: %w", err)
	}
	return s.record(start, out), nil
}

// RunStressTest ramps load over durationMinutes. A cancelled ctx aborts the
// ramp and nothing is recorded.
func (s *Simulator) RunStressTest(ctx context.Context, durationMinutes float64) (types.SimulationResult, error) {
	start := s.now()
	st, lim := s.base.Baseline()
	out, err := scenario.StressTest(ctx, st, durationMinutes, lim.Thresholds)
	if err != nil {
		return types.SimulationResult{}, fmt.Errorf("simulator: stress test: %w", err)
	}
	return s.record(start, out), nil
}

// History returns up to n of the most recent results, oldest first. n <= 0
// returns the whole history.
func (s *Simulator) History(n int) []types.SimulationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.history.Last(n)
	for i := range res {
		res[i] = cloneResult(res[i])
	}
	return res
}

// Clear empties the history.
func (s *Simulator) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Reset()
	slog.Info("simulator: history cleared")
}

func (s *Simulator) record(start time.Time, out scenario.Outcome) types.SimulationResult {
	end := s.now()
	res := types.SimulationResult{
		ID:              s.newID(),
		ScenarioName:    out.Name,
		Timestamp:       end,
		Parameters:      out.Projection,
		Warnings:        out.Warnings,
		Recommendations: out.Recommendations,
		Success:         out.Success,
		Duration:        end.Sub(start),
	}

	s.mu.Lock()
	s.history.Push(res)
	s.mu.Unlock()

	slog.Info("simulator: scenario evaluated",
		"scenario", res.ScenarioName, "success", res.Success, "warnings", len(res.Warnings))
	if s.onResult != nil {
		s.onResult(cloneResult(res))
	}
	return cloneResult(res)
}

func cloneResult(r types.SimulationResult) types.SimulationResult {
	r.Warnings = slices.Clone(r.Warnings)
	r.Recommendations = slices.Clone(r.Recommendations)
	if r.Parameters.Extra != nil {
		extra := make(map[string]float64, len(r.Parameters.Extra))
		for k, v := range r.Parameters.Extra {
			extra[k] = v
		}
		r.Parameters.Extra = extra
	}
	return r
}
