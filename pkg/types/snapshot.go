package types

import (
	"sort"
	"time"
)

// Metric names reported by the field gateway.
const (
	MetricConveyorSpeed    = "conveyor_speed"
	MetricMotorTemperature = "motor_temperature"
	MetricVibrationLevel   = "vibration_level"
	MetricMotorCurrent     = "motor_current"
	MetricEncoderPosition  = "encoder_position"
	MetricEmergencyStop    = "emergency_stop"
)

// StateMetrics is the ordered set of readings merged into OperationalState.
var StateMetrics = []string{
	MetricConveyorSpeed,
	MetricMotorTemperature,
	MetricVibrationLevel,
	MetricMotorCurrent,
}

// SensorSnapshot is one reading set produced per control cycle.
// A metric absent from Readings was not delivered by the source; it is not
// the same as a measured zero.
type SensorSnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Readings  map[string]float64 `json:"readings"`
}

// NewSnapshot copies readings so later mutation by the caller cannot leak
// into the snapshot.
func NewSnapshot(ts time.Time, readings map[string]float64) SensorSnapshot {
	cp := make(map[string]float64, len(readings))
	for k, v := range readings {
		cp[k] = v
	}
	return SensorSnapshot{Timestamp: ts, Readings: cp}
}

// Value returns the reading for metric and whether it was present.
func (s SensorSnapshot) Value(metric string) (float64, bool) {
	v, ok := s.Readings[metric]
	return v, ok
}

// MissingOf returns the sorted subset of metrics not present in the snapshot.
func (s SensorSnapshot) MissingOf(metrics []string) []string {
	var out []string
	for _, m := range metrics {
		if _, ok := s.Readings[m]; !ok {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
