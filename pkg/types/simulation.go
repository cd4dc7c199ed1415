package types

import "time"

// Projection holds projected operating values for a hypothetical scenario.
// Simulated values are not clamped to the live efficiency range unless the
// scenario model says so.
type Projection struct {
	Speed            float64 `json:"conveyor_speed"`
	MotorTemperature float64 `json:"motor_temperature"`
	VibrationLevel   float64 `json:"vibration_level"`
	MotorCurrent     float64 `json:"motor_current"`
	Efficiency       float64 `json:"efficiency"`

	// Extra carries scenario-specific figures such as load_factor or
	// roi_percentage.
	Extra map[string]float64 `json:"extra,omitempty"`
}

// ProjectionOf seeds a projection from a state copy.
func ProjectionOf(s OperationalState) Projection {
	return Projection{
		Speed:            s.Speed,
		MotorTemperature: s.MotorTemperature,
		VibrationLevel:   s.VibrationLevel,
		MotorCurrent:     s.MotorCurrent,
		Efficiency:       s.Efficiency,
	}
}

// SimulationResult is the outcome of one scenario evaluation.
type SimulationResult struct {
	ID              string        `json:"id"`
	ScenarioName    string        `json:"scenario_name"`
	Timestamp       time.Time     `json:"timestamp"`
	Parameters      Projection    `json:"parameters"`
	Warnings        []string      `json:"warnings"`
	Recommendations []string      `json:"recommendations"`
	Success         bool          `json:"success"`
	Duration        time.Duration `json:"duration_ns"`
}
