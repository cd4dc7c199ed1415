package scenario

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// minDivisor guards speed ratios against division by a stopped belt.
const minDivisor = 0.1

// Sentinel errors for invalid scenario input.
var (
	ErrUnknownComponent   = errors.New("scenario: unknown component")
	ErrInvalidSeverity    = errors.New("scenario: severity must be within [0, 1]")
	ErrUnknownMaintenance = errors.New("scenario: unknown maintenance type")
	ErrInvalidDuration    = errors.New("scenario: duration must be positive")
	ErrInvalidSpeed       = errors.New("scenario: target speed must be positive")
	ErrUnknownKind        = errors.New("scenario: unknown quick scenario kind")
)

// Limits bundles the configured bounds a scenario is judged against.
type Limits struct {
	Thresholds types.Thresholds
	MaxSpeed   float64
}

// Outcome is the result of evaluating one scenario model.
type Outcome struct {
	Name            string
	Projection      types.Projection
	Warnings        []string
	Recommendations []string
	Success         bool
}

func newOutcome(name string, base types.OperationalState) Outcome {
	p := types.ProjectionOf(base)
	p.Extra = make(map[string]float64)
	return Outcome{
		Name:            name,
		Projection:      p,
		Warnings:        []string{},
		Recommendations: []string{},
	}
}

// finite reports whether every projected value is a real number.
func finite(p types.Projection) bool {
	vals := []float64{p.Speed, p.MotorTemperature, p.VibrationLevel, p.MotorCurrent, p.Efficiency}
	for _, v := range p.Extra {
		vals = append(vals, v)
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (o *Outcome) warn(format string, args ...interface{}) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

func (o *Outcome) recommend(format string, args ...interface{}) {
	o.Recommendations = append(o.Recommendations, fmt.Sprintf(format, args...))
}

// SpeedIncrease projects the conveyor running at target speed.
//
// With ratio = target / max(speed, 0.1): temperature scales by ratio^0.8,
// vibration by ratio^1.2 and current linearly. Efficiency moves by
// -0.5·ΔT⁺ - 2.0·ΔV⁺ + 0.1·Δspeed and is floored at 60.
func SpeedIncrease(base types.OperationalState, target, durationMinutes float64, lim Limits) (Outcome, error) {
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return Outcome{}, ErrInvalidSpeed
	}
	out := newOutcome("speed_increase", base)
	ratio := target / math.Max(base.Speed, minDivisor)

	p := &out.Projection
	p.Speed = target
	p.MotorTemperature = base.MotorTemperature * math.Pow(ratio, 0.8)
	p.VibrationLevel = base.VibrationLevel * math.Pow(ratio, 1.2)
	p.MotorCurrent = base.MotorCurrent * ratio

	impact := -0.5*math.Max(0, p.MotorTemperature-base.MotorTemperature) -
		2.0*math.Max(0, p.VibrationLevel-base.VibrationLevel) +
		0.1*(target-base.Speed)
	p.Efficiency = math.Max(60, base.Efficiency+impact)
	p.Extra["speed_ratio"] = ratio
	p.Extra["duration_minutes"] = durationMinutes
	if !finite(*p) {
		return Outcome{}, fmt.Errorf("%w: %v overflows the projection", ErrInvalidSpeed, target)
	}

	out.Success = true
	if target > lim.MaxSpeed {
		out.warn("target speed %.1f m/s exceeds the maximum of %.1f m/s", target, lim.MaxSpeed)
		out.Success = false
	}

	temp := lim.Thresholds.MotorTemperature
	switch {
	case p.MotorTemperature > temp.Critical:
		out.warn("projected motor temperature %.1f°C is critical", p.MotorTemperature)
		out.recommend("increase motor cooling before raising the speed")
		out.Success = false
	case p.MotorTemperature > temp.Warning:
		out.warn("projected motor temperature %.1f°C is high", p.MotorTemperature)
	}

	if p.VibrationLevel > lim.Thresholds.VibrationLevel.Critical {
		out.warn("projected vibration level %.2f mm/s is critical", p.VibrationLevel)
		out.recommend("balance the equipment before raising the speed")
		out.Success = false
	}

	if out.Success {
		out.recommend("speed can be increased to %.1f m/s", target)
		out.recommend("projected efficiency: %.1f%%", p.Efficiency)
	}
	return out, nil
}

// Component is a conveyor part whose failure can be simulated.
type Component string

const (
	ComponentMotor      Component = "motor"
	ComponentBearing    Component = "bearing"
	ComponentSensor     Component = "sensor"
	ComponentController Component = "controller"
)

// ParseComponent validates a component name.
func ParseComponent(s string) (Component, error) {
	switch c := Component(s); c {
	case ComponentMotor, ComponentBearing, ComponentSensor, ComponentController:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownComponent, s)
	}
}

// ComponentFailure projects the effect of component failing with the given
// severity in [0, 1]. A failure scenario never succeeds.
func ComponentFailure(base types.OperationalState, c Component, severity float64) (Outcome, error) {
	if severity < 0 || severity > 1 || math.IsNaN(severity) {
		return Outcome{}, fmt.Errorf("%w: got %v", ErrInvalidSeverity, severity)
	}
	out := newOutcome("failure_"+string(c), base)
	p := &out.Projection

	switch c {
	case ComponentMotor:
		p.MotorTemperature += 20 * severity
		p.MotorCurrent += 5 * severity
		p.Efficiency -= 25 * severity
		out.recommend("stop the conveyor immediately")
		out.recommend("call a service engineer")
	case ComponentBearing:
		p.VibrationLevel += 3 * severity
		p.MotorTemperature += 10 * severity
		p.Efficiency -= 15 * severity
		out.recommend("schedule maintenance within 24 hours")
	case ComponentSensor:
		p.Efficiency -= 10 * severity
		out.recommend("recalibrate the sensor system")
	case ComponentController:
		p.Speed *= 1 - 0.3*severity
		p.Efficiency -= 20 * severity
		out.recommend("restart the control system")
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownComponent, c)
	}
	out.warn("simulated %s failure (severity %.2f)", c, severity)

	p.Efficiency = math.Max(0, p.Efficiency)
	p.VibrationLevel = math.Max(0, p.VibrationLevel)
	p.Extra["severity"] = severity
	out.Success = false
	return out, nil
}

// WhatIfConfig describes a free-form hypothetical.
type WhatIfConfig struct {
	Name string `json:"name"`

	// Changes overrides state fields by metric name before the degradation
	// model runs. Recognised keys: conveyor_speed (or current_speed),
	// motor_temperature, vibration_level, motor_current, efficiency.
	Changes map[string]float64 `json:"changes"`

	// DurationHours is the horizon of the degradation model; values <= 0
	// default to one hour.
	DurationHours float64 `json:"duration_hours"`
}

// WhatIf applies cfg.Changes and then a uniform long-term degradation model:
// efficiency × (1 − 0.01·h), vibration × (1 + 0.005·h),
// temperature × (1 + 0.001·h).
func WhatIf(base types.OperationalState, cfg WhatIfConfig, th types.Thresholds) Outcome {
	name := cfg.Name
	if name == "" {
		name = "what_if_scenario"
	}
	hours := cfg.DurationHours
	if hours <= 0 {
		hours = 1
	}
	out := newOutcome(name, base)
	p := &out.Projection

	for _, key := range sortedKeys(cfg.Changes) {
		v := cfg.Changes[key]
		switch key {
		case types.MetricConveyorSpeed, "current_speed":
			p.Speed = v
		case types.MetricMotorTemperature:
			p.MotorTemperature = v
		case types.MetricVibrationLevel:
			p.VibrationLevel = v
		case types.MetricMotorCurrent:
			p.MotorCurrent = v
		case "efficiency":
			p.Efficiency = v
		default:
			out.warn("ignored unknown parameter %q", key)
		}
	}

	p.Efficiency *= 1 - 0.01*hours
	p.VibrationLevel *= 1 + 0.005*hours
	p.MotorTemperature *= 1 + 0.001*hours
	p.Extra["duration_hours"] = hours

	out.Success = p.MotorTemperature <= th.MotorTemperature.Critical &&
		p.VibrationLevel <= th.VibrationLevel.Critical &&
		p.Efficiency >= 60
	if !out.Success {
		out.warn("scenario reaches critical operating parameters")
	}
	if p.Efficiency < 80 {
		out.recommend("review operating parameters for optimisation")
	}
	if p.MotorTemperature > th.MotorTemperature.Warning {
		out.recommend("increase motor cooling")
	}
	return out
}

// MaintenanceType selects the maintenance improvement model.
type MaintenanceType string

const (
	MaintenancePreventive MaintenanceType = "preventive"
	MaintenanceCorrective MaintenanceType = "corrective"
	MaintenancePredictive MaintenanceType = "predictive"
)

// ParseMaintenanceType validates a maintenance type name.
func ParseMaintenanceType(s string) (MaintenanceType, error) {
	switch m := MaintenanceType(s); m {
	case MaintenancePreventive, MaintenanceCorrective, MaintenancePredictive:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMaintenance, s)
	}
}

// costFactor scales the base maintenance cost per type.
var costFactor = map[MaintenanceType]float64{
	MaintenancePreventive: 1.0,
	MaintenanceCorrective: 1.5,
	MaintenancePredictive: 1.2,
}

// MaintenanceImpact projects the state after maintenance of the given type
// and estimates its return on investment:
// ROI = (efficiency_gain·100 − cost) / cost · 100.
func MaintenanceImpact(base types.OperationalState, kind MaintenanceType, durationHours, baseCost float64) (Outcome, error) {
	factor, ok := costFactor[kind]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownMaintenance, kind)
	}
	out := newOutcome("maintenance_"+string(kind), base)
	p := &out.Projection

	switch kind {
	case MaintenancePreventive:
		p.VibrationLevel *= 0.7
		p.Efficiency = math.Min(100, p.Efficiency+10)
		out.recommend("preventive maintenance will improve throughput")
	case MaintenanceCorrective:
		p.VibrationLevel *= 0.5
		p.MotorTemperature -= 5
		p.Efficiency = math.Min(100, p.Efficiency+15)
		out.recommend("corrective maintenance will clear current faults")
	case MaintenancePredictive:
		p.VibrationLevel *= 0.6
		p.MotorTemperature -= 3
		p.Efficiency = math.Min(100, p.Efficiency+12)
		out.recommend("predictive maintenance will prevent future failures")
	}

	c := costing(baseCost, factor, p.Efficiency-base.Efficiency)
	p.Extra["cost"] = c.cost
	p.Extra["benefit"] = c.benefit
	p.Extra["roi_percentage"] = c.roi
	p.Extra["payback_period_days"] = c.paybackDays
	p.Extra["duration_hours"] = durationHours

	out.recommend("projected ROI: %.1f%%", c.roi)
	out.Success = true
	return out, nil
}

type maintenanceCost struct {
	cost, benefit, roi, paybackDays float64
}

// costing prices a maintenance run in decimal arithmetic. The cost is
// rounded to cents; one efficiency point is worth 100 cost units.
func costing(baseCost, factor, efficiencyGain float64) maintenanceCost {
	hundred := decimal.NewFromInt(100)
	cost := decimal.NewFromFloat(baseCost).Mul(decimal.NewFromFloat(factor)).Round(2)
	benefit := decimal.NewFromFloat(efficiencyGain).Mul(hundred)

	var roi decimal.Decimal
	if cost.IsPositive() {
		roi = benefit.Sub(cost).Div(cost).Mul(hundred)
	}
	payback := cost.Div(decimal.Max(benefit, decimal.NewFromInt(1))).Mul(decimal.NewFromInt(30))

	return maintenanceCost{
		cost:        cost.InexactFloat64(),
		benefit:     benefit.InexactFloat64(),
		roi:         roi.InexactFloat64(),
		paybackDays: payback.InexactFloat64(),
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
