package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/conveyortwin/conveyortwin/internal/ring"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// MetricEfficiency names the derived efficiency series.
const MetricEfficiency = "efficiency"

// Metrics lists every series the store can return.
var Metrics = []string{
	types.MetricConveyorSpeed,
	types.MetricMotorTemperature,
	types.MetricVibrationLevel,
	types.MetricMotorCurrent,
	MetricEfficiency,
}

// ErrUnknownMetric is returned by Values for a metric the store does not
// track.
var ErrUnknownMetric = errors.New("series: unknown metric")

// Point is one recorded state sample.
type Point struct {
	At               time.Time
	Speed            float64
	MotorTemperature float64
	VibrationLevel   float64
	MotorCurrent     float64
	Efficiency       float64

	// Missing lists readings that were not measured in this cycle. Their
	// values above are carried over and are skipped by Values.
	Missing []string
}

func (p Point) value(metric string) (float64, bool) {
	if slices.Contains(p.Missing, metric) {
		return 0, false
	}
	switch metric {
	case types.MetricConveyorSpeed:
		return p.Speed, true
	case types.MetricMotorTemperature:
		return p.MotorTemperature, true
	case types.MetricVibrationLevel:
		return p.VibrationLevel, true
	case types.MetricMotorCurrent:
		return p.MotorCurrent, true
	case MetricEfficiency:
		return p.Efficiency, true
	}
	return 0, false
}

// Store is a thread-safe bounded series of state samples.
type Store struct {
	mu        sync.RWMutex
	points    *ring.Buffer[Point]
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Store that keeps samples for retention and holds at most
// capacity of them.
func New(retention time.Duration, capacity int) *Store {
	return &Store{
		points:    ring.New[Point](capacity),
		retention: retention,
		now:       time.Now,
	}
}

// Record appends a sample of st. A zero UpdatedAt is stamped with the
// current time.
func (s *Store) Record(st types.OperationalState) {
	at := st.UpdatedAt
	if at.IsZero() {
		at = s.now()
	}
	p := Point{
		At:               at,
		Speed:            st.Speed,
		MotorTemperature: st.MotorTemperature,
		VibrationLevel:   st.VibrationLevel,
		MotorCurrent:     st.MotorCurrent,
		Efficiency:       st.Efficiency,
	}
	if len(st.Missing) > 0 {
		p.Missing = append([]string(nil), st.Missing...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.points.Push(p)
}

// Values returns the measured values of metric recorded at or after since,
// oldest first. Cycles in which the metric was missing are skipped.
func (s *Store) Values(metric string, since time.Time) ([]float64, error) {
	if !slices.Contains(Metrics, metric) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, 0, s.points.Len())
	for i := 0; i < s.points.Len(); i++ {
		p := s.points.At(i)
		if p.At.Before(since) {
			continue
		}
		if v, ok := p.value(metric); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Points returns up to n of the newest samples, oldest first.
func (s *Store) Points(n int) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points.Last(n)
}

// Len returns the number of samples held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points.Len()
}

// Evict removes samples older than now minus the retention window and
// returns how many were removed.
func (s *Store) Evict(now time.Time) int {
	cutoff := now.Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points.DropWhile(func(p Point) bool { return p.At.Before(cutoff) })
}

// Run starts the background retention loop. It ticks at a tenth of the
// retention window (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.retention / 10
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("series: evicted expired samples", "count", n)
			}
		}
	}
}
