package twin

import (
	"fmt"
	"math"
	"time"

	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// Efficiency bounds and penalty weights per unit over the warning limit.
const (
	EfficiencyFloor   = 60.0
	EfficiencyCeiling = 100.0

	penaltyTemperature = 0.5
	penaltyVibration   = 2.0
	penaltyCurrent     = 1.5
)

// LowEfficiency is the efficiency below which a LOW_EFFICIENCY alert fires.
const LowEfficiency = 75.0

// Bearing wear signature: all three conditions must hold.
const (
	bearingVibration   = 6.0
	bearingTemperature = 85.0
	bearingEfficiency  = 80.0
)

// Efficiency returns 100 minus weighted penalties for each metric above its
// warning limit, clamped to [60, 100].
func Efficiency(s types.OperationalState, th types.Thresholds) float64 {
	eff := EfficiencyCeiling
	eff -= penaltyTemperature * math.Max(0, s.MotorTemperature-th.MotorTemperature.Warning)
	eff -= penaltyVibration * math.Max(0, s.VibrationLevel-th.VibrationLevel.Warning)
	eff -= penaltyCurrent * math.Max(0, s.MotorCurrent-th.MotorCurrent.Warning)
	return math.Min(EfficiencyCeiling, math.Max(EfficiencyFloor, eff))
}

// DetectAnomalies returns the alerts active for s. Each rule fires
// independently. The returned alerts carry no ID.
func DetectAnomalies(s types.OperationalState, th types.Thresholds, at time.Time) []types.Alert {
	var out []types.Alert
	if s.MotorTemperature > th.MotorTemperature.Critical {
		out = append(out, types.Alert{
			Type:      types.AlertCriticalTemperature,
			Message:   fmt.Sprintf("critical motor temperature: %.1f°C", s.MotorTemperature),
			Severity:  types.SeverityHigh,
			Value:     s.MotorTemperature,
			Timestamp: at,
		})
	}
	if s.VibrationLevel > th.VibrationLevel.Critical {
		out = append(out, types.Alert{
			Type:      types.AlertHighVibration,
			Message:   fmt.Sprintf("high vibration level: %.2f mm/s", s.VibrationLevel),
			Severity:  types.SeverityHigh,
			Value:     s.VibrationLevel,
			Timestamp: at,
		})
	}
	if s.Efficiency < LowEfficiency {
		out = append(out, types.Alert{
			Type:      types.AlertLowEfficiency,
			Message:   fmt.Sprintf("low efficiency: %.1f%%", s.Efficiency),
			Severity:  types.SeverityMedium,
			Value:     s.Efficiency,
			Timestamp: at,
		})
	}
	return out
}

// PredictMaintenance applies the maintenance decision table to s. The bearing
// wear signature wins over the routine interval.
func PredictMaintenance(s types.OperationalState, interval float64) types.MaintenancePrediction {
	switch {
	case s.VibrationLevel > bearingVibration &&
		s.MotorTemperature > bearingTemperature &&
		s.Efficiency < bearingEfficiency:
		return types.MaintenancePrediction{
			Needed:             true,
			PredictedFailure:   "motor bearing failure",
			RecommendedActions: []string{"check balancing", "replace bearings"},
			Urgency:            types.UrgencyHigh,
		}
	case s.UptimeHours > interval:
		return types.MaintenancePrediction{
			Needed:             true,
			PredictedFailure:   "scheduled maintenance due",
			RecommendedActions: []string{"perform full technical service"},
			Urgency:            types.UrgencyMedium,
		}
	default:
		return types.MaintenancePrediction{
			Needed:             false,
			RecommendedActions: []string{},
			Urgency:            types.UrgencyLow,
		}
	}
}

// NextMode returns the operating mode after a cycle that produced alerts and
// pred. EMERGENCY and MAINTENANCE hold until an operator resets the twin to
// NORMAL; only automatic escalation happens here.
//
// Maintenance escalation is edge-triggered: it fires only when pred differs
// from prev, the prediction of the previous cycle. A due prediction the
// operator has already seen does not pull the twin back out of NORMAL.
func NextMode(current types.Mode, alerts []types.Alert, pred, prev types.MaintenancePrediction, emergencyStop bool) types.Mode {
	if emergencyStop {
		return types.ModeEmergency
	}
	for _, a := range alerts {
		if a.Severity >= types.SeverityHigh {
			return types.ModeEmergency
		}
	}
	if current == types.ModeNormal && pred.Needed && newPrediction(pred, prev) {
		return types.ModeMaintenance
	}
	if current == "" {
		return types.ModeNormal
	}
	return current
}

// newPrediction reports whether pred is a maintenance need not already
// raised by prev.
func newPrediction(pred, prev types.MaintenancePrediction) bool {
	return !prev.Needed || pred.PredictedFailure != prev.PredictedFailure
}
