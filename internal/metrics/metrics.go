// Package metrics exports the twin's state, alerts, OEE and simulation
// activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conveyortwin/conveyortwin/internal/analytics"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

const namespace = "conveyortwin"

var modes = []types.Mode{types.ModeNormal, types.ModeMaintenance, types.ModeEmergency}

// Metrics holds every collector the twin exports.
type Metrics struct {
	reg *prometheus.Registry

	state         *prometheus.GaugeVec
	efficiency    prometheus.Gauge
	uptime        prometheus.Gauge
	items         prometheus.Gauge
	defects       prometheus.Gauge
	mode          *prometheus.GaugeVec
	activeAlerts  *prometheus.GaugeVec
	oee           *prometheus.GaugeVec
	cycles        prometheus.Counter
	readFailures  prometheus.Counter
	missing       *prometheus.CounterVec
	simulations   *prometheus.CounterVec
	updateLatency prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry along
// with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Last measured value of each conveyor metric.",
		}, []string{"metric"}),
		efficiency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "efficiency_percent",
			Help:      "Derived conveyor efficiency.",
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_hours",
			Help:      "Accumulated operating hours.",
		}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_processed",
			Help:      "Items moved since start.",
		}),
		defects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "defects",
			Help:      "Defective items reported since start.",
		}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operating_mode",
			Help:      "1 for the current operating mode, 0 otherwise.",
		}, []string{"mode"}),
		activeAlerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Alerts raised by the last update, by type.",
		}, []string{"type"}),
		oee: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "oee_percent",
			Help:      "Overall equipment effectiveness and its factors.",
		}, []string{"factor"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Control cycles that updated the twin.",
		}),
		readFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Control cycles skipped because the sensor source failed.",
		}),
		missing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_readings_total",
			Help:      "Updates in which a metric was missing from the snapshot.",
		}, []string{"metric"}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Simulations run, by scenario and outcome.",
		}, []string{"scenario", "outcome"}),
		updateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time from sensor read to twin update completion.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.state, m.efficiency, m.uptime, m.items, m.defects, m.mode,
		m.activeAlerts, m.oee, m.cycles, m.readFailures, m.missing,
		m.simulations, m.updateLatency,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveState records one completed update. Metrics missing from the
// snapshot keep their previous gauge value and bump the missing counter.
func (m *Metrics) ObserveState(st types.OperationalState, took time.Duration) {
	m.cycles.Inc()
	m.updateLatency.Observe(took.Seconds())

	missing := make(map[string]bool, len(st.Missing))
	for _, name := range st.Missing {
		missing[name] = true
		m.missing.WithLabelValues(name).Inc()
	}
	values := map[string]float64{
		types.MetricConveyorSpeed:    st.Speed,
		types.MetricMotorTemperature: st.MotorTemperature,
		types.MetricVibrationLevel:   st.VibrationLevel,
		types.MetricMotorCurrent:     st.MotorCurrent,
	}
	for name, v := range values {
		if !missing[name] {
			m.state.WithLabelValues(name).Set(v)
		}
	}

	m.efficiency.Set(st.Efficiency)
	m.uptime.Set(st.UptimeHours)
	m.items.Set(float64(st.ItemsProcessed))
	m.defects.Set(float64(st.DefectsCount))
	for _, md := range modes {
		v := 0.0
		if md == st.Mode {
			v = 1
		}
		m.mode.WithLabelValues(string(md)).Set(v)
	}
}

// ObserveAlerts sets the active alert gauges from the current alert set.
func (m *Metrics) ObserveAlerts(alerts []types.Alert) {
	counts := make(map[types.AlertType]int, len(types.AlertTypes))
	for _, a := range alerts {
		counts[a.Type]++
	}
	for _, typ := range types.AlertTypes {
		m.activeAlerts.WithLabelValues(typ.String()).Set(float64(counts[typ]))
	}
}

// ObserveOEE sets the OEE gauges.
func (m *Metrics) ObserveOEE(o analytics.OEE) {
	m.oee.WithLabelValues("oee").Set(o.OEE)
	m.oee.WithLabelValues("availability").Set(o.Availability)
	m.oee.WithLabelValues("performance").Set(o.Performance)
	m.oee.WithLabelValues("quality").Set(o.Quality)
}

// ReadFailed counts a skipped cycle.
func (m *Metrics) ReadFailed() { m.readFailures.Inc() }

// SimulationDone counts a finished simulation.
func (m *Metrics) SimulationDone(res types.SimulationResult) {
	outcome := "failure"
	if res.Success {
		outcome = "success"
	}
	m.simulations.WithLabelValues(res.ScenarioName, outcome).Inc()
}
