package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conveyortwin/conveyortwin/internal/analytics"
	"github.com/conveyortwin/conveyortwin/internal/twin"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// sinkTimeout bounds each persistence or cache write.
const sinkTimeout = 5 * time.Second

// Source produces one snapshot per cycle. sensor.Source satisfies it.
type Source interface {
	Read(ctx context.Context) (types.SensorSnapshot, error)
}

// Twin is the state holder updated each cycle. *twin.Twin satisfies it.
type Twin interface {
	Update(snap types.SensorSnapshot)
	View() twin.View
}

// Recorder keeps states for trend analysis. *series.Store satisfies it.
type Recorder interface {
	Record(st types.OperationalState)
}

// OEECalculator computes OEE. *analytics.Engine satisfies it.
type OEECalculator interface {
	CalculateOEE() analytics.OEE
}

// Observer exports cycle metrics. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveState(st types.OperationalState, took time.Duration)
	ObserveAlerts(alerts []types.Alert)
	ObserveOEE(o analytics.OEE)
	ReadFailed()
}

// AlertObserver tracks alert lifecycles. *notify.Notifier satisfies it.
type AlertObserver interface {
	Observe(alerts []types.Alert)
}

// Publisher forwards state and alerts to the bus. *publisher.Publisher
// satisfies it.
type Publisher interface {
	PublishState(st types.OperationalState)
	PublishAlerts(alerts []types.Alert)
}

// ReadingSink persists one state per cycle. *persist.SQLSink and
// *persist.InfluxSink satisfy it.
type ReadingSink interface {
	Name() string
	SaveReading(ctx context.Context, st types.OperationalState) error
}

// AlertSink persists raised alerts. *persist.SQLSink satisfies it.
type AlertSink interface {
	SaveAlerts(ctx context.Context, alerts []types.Alert) error
}

// ViewCache stores the latest view for other processes. *cache.ViewCache
// satisfies it.
type ViewCache interface {
	Put(ctx context.Context, v twin.View) error
}

// Options wire the loop's collaborators. Source and Twin are required;
// everything else may be nil.
type Options struct {
	Source    Source
	Twin      Twin
	Series    Recorder
	Analytics OEECalculator
	Metrics   Observer
	Notifier  AlertObserver
	Publisher Publisher
	Readings  []ReadingSink
	Alerts    AlertSink
	Cache     ViewCache
}

// Loop drives the control cycle.
type Loop struct {
	opts     Options
	interval time.Duration
	now      func() time.Time
}

// New returns a Loop that steps every interval.
func New(opts Options, interval time.Duration) (*Loop, error) {
	if opts.Source == nil || opts.Twin == nil {
		return nil, fmt.Errorf("control: source and twin are required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("control: interval must be positive, got %v", interval)
	}
	return &Loop{opts: opts, interval: interval, now: time.Now}, nil
}

// Run steps the loop every interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	t := time.NewTicker(l.interval)
	defer t.Stop()

	slog.Info("control: loop started", "interval", l.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("control: loop stopped")
			return
		case <-t.C:
			if err := l.Step(ctx); err != nil {
				slog.Warn("control: cycle skipped", "err", err)
			}
		}
	}
}

// Step runs one cycle. It returns an error only when no snapshot could be
// read; sink failures are logged.
func (l *Loop) Step(ctx context.Context) error {
	start := l.now()
	o := l.opts

	snap, err := o.Source.Read(ctx)
	if err != nil {
		if o.Metrics != nil {
			o.Metrics.ReadFailed()
		}
		return fmt.Errorf("control: read source: %w", err)
	}

	o.Twin.Update(snap)
	v := o.Twin.View()

	if o.Series != nil {
		o.Series.Record(v.State)
	}
	if o.Metrics != nil {
		o.Metrics.ObserveState(v.State, l.now().Sub(start))
		o.Metrics.ObserveAlerts(v.Alerts)
		if o.Analytics != nil {
			o.Metrics.ObserveOEE(o.Analytics.CalculateOEE())
		}
	}
	if o.Notifier != nil {
		o.Notifier.Observe(v.Alerts)
	}
	if o.Publisher != nil {
		o.Publisher.PublishState(v.State)
		o.Publisher.PublishAlerts(v.Alerts)
	}

	l.persist(ctx, v)

	slog.Debug("control: cycle done",
		"mode", v.State.Mode,
		"efficiency", v.State.Efficiency,
		"alerts", len(v.Alerts),
		"missing", v.State.Missing,
	)
	return nil
}

func (l *Loop) persist(ctx context.Context, v twin.View) {
	o := l.opts
	for _, s := range o.Readings {
		wctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := s.SaveReading(wctx, v.State); err != nil {
			slog.Warn("control: save reading failed", "sink", s.Name(), "err", err)
		}
		cancel()
	}
	if o.Alerts != nil && len(v.Alerts) > 0 {
		wctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := o.Alerts.SaveAlerts(wctx, v.Alerts); err != nil {
			slog.Warn("control: save alerts failed", "err", err)
		}
		cancel()
	}
	if o.Cache != nil {
		wctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := o.Cache.Put(wctx, v); err != nil {
			slog.Warn("control: cache view failed", "err", err)
		}
		cancel()
	}
}
