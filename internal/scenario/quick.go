package scenario

import (
	"fmt"

	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// Kind names a quick scenario offered directly by the twin.
type Kind string

const (
	KindIncreaseSpeed    Kind = "increase_speed"
	KindComponentFailure Kind = "component_failure"
)

// QuickParams parameterises a quick scenario. Zero fields take defaults:
// Speed defaults to 120% of the baseline speed, Component to the motor and
// Severity to 0.5.
type QuickParams struct {
	Speed     float64   `json:"speed,omitempty"`
	Component Component `json:"component,omitempty"`
	Severity  float64   `json:"severity,omitempty"`
}

// Quick evaluates one of the twin's shortcut scenarios through the same
// models the simulator uses.
func Quick(kind Kind, base types.OperationalState, p QuickParams, lim Limits) (Outcome, error) {
	switch kind {
	case KindIncreaseSpeed:
		target := p.Speed
		if target == 0 {
			target = base.Speed * 1.2
		}
		if target == 0 {
			target = minDivisor
		}
		return SpeedIncrease(base, target, 0, lim)
	case KindComponentFailure:
		c := p.Component
		if c == "" {
			c = ComponentMotor
		}
		sev := p.Severity
		if sev == 0 {
			sev = 0.5
		}
		return ComponentFailure(base, c, sev)
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
