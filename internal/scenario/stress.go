package scenario

import (
	"context"
	"fmt"
	"math"

	"github.com/conveyortwin/conveyortwin/pkg/types"
)

const (
	stressSamples = 10
	stressMaxLoad = 1.5
)

// StressSample is one point on the stress ramp.
type StressSample struct {
	Minute           float64
	Load             float64
	Speed            float64
	MotorTemperature float64
	VibrationLevel   float64
	MotorCurrent     float64
	Efficiency       float64
}

func (s StressSample) critical(th types.Thresholds) bool {
	return s.MotorTemperature > th.MotorTemperature.Critical ||
		s.VibrationLevel > th.VibrationLevel.Critical
}

// StressRamp samples the conveyor under a load ramping linearly from 0 to
// 1.5× over durationMinutes. The ramp stops after the first sample that
// crosses a critical limit; that sample is included.
//
// ctx is checked between samples so long-running callers can abandon the
// test.
func StressRamp(ctx context.Context, base types.OperationalState, durationMinutes float64, th types.Thresholds) ([]StressSample, error) {
	if durationMinutes <= 0 || math.IsNaN(durationMinutes) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDuration, durationMinutes)
	}
	samples := make([]StressSample, 0, stressSamples)
	for i := 0; i < stressSamples; i++ {
		if err := ctx.Err(); err != nil {
			return samples, fmt.Errorf("scenario: stress test stopped after %d samples: %w", i, err)
		}
		frac := float64(i) / float64(stressSamples-1)
		load := frac * stressMaxLoad
		s := StressSample{
			Minute:           frac * durationMinutes,
			Load:             load,
			Speed:            base.Speed * load,
			MotorTemperature: base.MotorTemperature * (1 + 0.5*load),
			VibrationLevel:   base.VibrationLevel * (1 + 0.8*load),
			MotorCurrent:     base.MotorCurrent * load,
			Efficiency:       base.Efficiency * (1 - 0.2*math.Max(0, load-1)),
		}
		samples = append(samples, s)
		if s.critical(th) {
			break
		}
	}
	return samples, nil
}

// StressTest runs StressRamp and folds the samples into an Outcome holding
// the peak of each metric and the minimum efficiency. The test succeeds only
// when no sample reached a critical limit.
func StressTest(ctx context.Context, base types.OperationalState, durationMinutes float64, th types.Thresholds) (Outcome, error) {
	samples, err := StressRamp(ctx, base, durationMinutes, th)
	if err != nil {
		return Outcome{}, err
	}

	out := newOutcome("stress_test", base)
	p := &out.Projection
	p.Speed = math.Inf(-1)
	p.MotorTemperature = math.Inf(-1)
	p.VibrationLevel = math.Inf(-1)
	p.MotorCurrent = math.Inf(-1)
	p.Efficiency = math.Inf(1)
	maxLoad := 0.0

	for _, s := range samples {
		p.Speed = math.Max(p.Speed, s.Speed)
		p.MotorTemperature = math.Max(p.MotorTemperature, s.MotorTemperature)
		p.VibrationLevel = math.Max(p.VibrationLevel, s.VibrationLevel)
		p.MotorCurrent = math.Max(p.MotorCurrent, s.MotorCurrent)
		p.Efficiency = math.Min(p.Efficiency, s.Efficiency)
		maxLoad = math.Max(maxLoad, s.Load)
	}

	last := samples[len(samples)-1]
	if last.critical(th) {
		out.warn("critical limits reached at load factor %.2f after %.1f minutes", last.Load, last.Minute)
		out.recommend("do not exceed %.0f%% of nominal load", last.Load*100)
	} else {
		out.recommend("system withstands up to %.0f%% of nominal load", maxLoad*100)
	}

	p.Extra["load_factor"] = maxLoad
	p.Extra["samples"] = float64(len(samples))
	p.Extra["duration_minutes"] = durationMinutes
	out.Success = len(out.Warnings) == 0
	return out, nil
}
