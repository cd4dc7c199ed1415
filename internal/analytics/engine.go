package analytics

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/conveyortwin/conveyortwin/internal/series"
	"github.com/conveyortwin/conveyortwin/internal/twin"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// Recommendation limits for reports. They are fixed and do not follow the
// configured alert thresholds.
const (
	reportEfficiency  = 85.0
	reportTemperature = 80.0
	reportAlerts      = 5
)

// Viewer supplies a consistent view of the twin. *twin.Twin satisfies it.
type Viewer interface {
	View() twin.View
}

// SeriesReader supplies recorded metric values. *series.Store satisfies it.
type SeriesReader interface {
	Values(metric string, since time.Time) ([]float64, error)
}

// Report summarises the twin over a period.
type Report struct {
	Period          string                      `json:"period"`
	PeriodHours     float64                     `json:"period_hours"`
	GeneratedAt     time.Time                   `json:"generated_at"`
	OEE             OEE                         `json:"oee_metrics"`
	State           types.OperationalState      `json:"operational_parameters"`
	AlertCount      int                         `json:"alerts_count"`
	Maintenance     types.MaintenancePrediction `json:"maintenance_prediction"`
	Recommendations []string                    `json:"recommendations"`
	Trends          map[string]Trend            `json:"trends"`
}

// Engine computes analytics over a live twin.
type Engine struct {
	twin   Viewer
	series SeriesReader
	window int
	now    func() time.Time
}

// New returns an Engine. series may be nil, in which case every trend is
// TrendInsufficientData.
func New(v Viewer, s SeriesReader) *Engine {
	return &Engine{twin: v, series: s, window: DefaultWindow, now: time.Now}
}

// CalculateOEE computes OEE for the current state.
func (e *Engine) CalculateOEE() OEE {
	v := e.twin.View()
	return ComputeOEE(v.State, len(v.Alerts))
}

// Trends classifies every recorded metric over the last period.
func (e *Engine) Trends(period time.Duration) map[string]Trend {
	out := make(map[string]Trend, len(series.Metrics))
	since := e.now().Add(-period)
	for _, m := range series.Metrics {
		out[m] = TrendInsufficientData
		if e.series == nil {
			continue
		}
		vals, err := e.series.Values(m, since)
		if err != nil {
			slog.Warn("analytics: series read failed", "metric", m, "err", err)
			continue
		}
		out[m] = TrendAnalysis(vals, e.window)
	}
	return out
}

// GenerateReport summarises the last periodHours. Non-positive periods
// default to 24 hours.
func (e *Engine) GenerateReport(periodHours float64) Report {
	if periodHours <= 0 || math.IsNaN(periodHours) {
		periodHours = 24
	}
	v := e.twin.View()
	period := time.Duration(periodHours * float64(time.Hour))
	return Report{
		Period:          fmt.Sprintf("last %g hours", periodHours),
		PeriodHours:     periodHours,
		GeneratedAt:     e.now(),
		OEE:             ComputeOEE(v.State, len(v.Alerts)),
		State:           v.State,
		AlertCount:      len(v.Alerts),
		Maintenance:     v.Maintenance,
		Recommendations: Recommendations(v),
		Trends:          e.Trends(period),
	}
}

// Recommendations derives optimisation advice from a twin view.
func Recommendations(v twin.View) []string {
	out := []string{}
	if v.State.Efficiency < reportEfficiency {
		out = append(out, "check motor settings and belt balancing")
	}
	if v.State.MotorTemperature > reportTemperature {
		out = append(out, "improve motor cooling")
	}
	if len(v.Alerts) > reportAlerts {
		out = append(out, "run a full system diagnostic")
	}
	return out
}
