package types

import (
	"fmt"
	"time"
)

// Mode is the equipment operating mode.
type Mode string

const (
	ModeNormal      Mode = "NORMAL"
	ModeMaintenance Mode = "MAINTENANCE"
	ModeEmergency   Mode = "EMERGENCY"
)

// ParseMode converts an upper-case mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNormal, ModeMaintenance, ModeEmergency:
		return m, nil
	default:
		return "", fmt.Errorf("types: unknown mode %q", s)
	}
}

// OperationalState is the derived state of the conveyor. It is owned and
// mutated only by the twin; everyone else receives copies.
type OperationalState struct {
	Speed            float64 `json:"current_speed"`
	MotorTemperature float64 `json:"motor_temperature"`
	VibrationLevel   float64 `json:"vibration_level"`
	MotorCurrent     float64 `json:"motor_current"`

	// Efficiency is in percent and stays within [60, 100] after every update.
	Efficiency float64 `json:"efficiency"`

	UptimeHours    float64 `json:"uptime_hours"`
	ItemsProcessed int64   `json:"items_processed"`
	DefectsCount   int64   `json:"defects_count"`

	Mode Mode `json:"operating_mode"`

	// Missing lists the metrics absent from the most recent snapshot. Their
	// fields above still carry the last value that was actually measured.
	Missing []string `json:"missing,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of s.
func (s OperationalState) Clone() OperationalState {
	cp := s
	if s.Missing != nil {
		cp.Missing = append([]string(nil), s.Missing...)
	}
	return cp
}

// Degraded reports whether any reading was missing in the last update.
func (s OperationalState) Degraded() bool { return len(s.Missing) > 0 }

// Limit is a warning/critical pair for one metric.
type Limit struct {
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// Thresholds is the metric → limit table shared by the twin, analytics and
// simulator.
type Thresholds struct {
	MotorTemperature Limit `yaml:"motor_temperature" json:"motor_temperature"`
	VibrationLevel   Limit `yaml:"vibration_level" json:"vibration_level"`
	MotorCurrent     Limit `yaml:"motor_current" json:"motor_current"`
}

// DefaultThresholds matches the factory register configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MotorTemperature: Limit{Warning: 80, Critical: 90},
		VibrationLevel:   Limit{Warning: 5, Critical: 7},
		MotorCurrent:     Limit{Warning: 15, Critical: 20},
	}
}

// For returns the limit configured for metric and whether one exists.
func (t Thresholds) For(metric string) (Limit, bool) {
	switch metric {
	case MetricMotorTemperature:
		return t.MotorTemperature, true
	case MetricVibrationLevel:
		return t.VibrationLevel, true
	case MetricMotorCurrent:
		return t.MotorCurrent, true
	default:
		return Limit{}, false
	}
}
