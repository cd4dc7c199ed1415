package persist

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/conveyortwin/conveyortwin/internal/config"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// pointWriter is satisfied by api.WriteAPIBlocking.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink writes one point per state sample. Missing metrics are left
// out of the point rather than written as zero.
type InfluxSink struct {
	client      influxdb2.Client
	writer      pointWriter
	measurement string
}

// NewInfluxSink connects to the InfluxDB server described by cfg.
func NewInfluxSink(cfg config.InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token())
	return &InfluxSink{
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
	}
}

func (s *InfluxSink) Name() string { return "influxdb" }

// SaveReading writes st as a point tagged with the operating mode.
func (s *InfluxSink) SaveReading(ctx context.Context, st types.OperationalState) error {
	if err := s.writer.WritePoint(ctx, s.point(st)); err != nil {
		return fmt.Errorf("persist: influx write: %w", err)
	}
	return nil
}

func (s *InfluxSink) point(st types.OperationalState) *write.Point {
	missing := make(map[string]bool, len(st.Missing))
	for _, m := range st.Missing {
		missing[m] = true
	}
	fields := map[string]interface{}{
		"efficiency":      st.Efficiency,
		"uptime_hours":    st.UptimeHours,
		"items_processed": st.ItemsProcessed,
		"defects_count":   st.DefectsCount,
	}
	values := map[string]float64{
		types.MetricConveyorSpeed:    st.Speed,
		types.MetricMotorTemperature: st.MotorTemperature,
		types.MetricVibrationLevel:   st.VibrationLevel,
		types.MetricMotorCurrent:     st.MotorCurrent,
	}
	for name, v := range values {
		if !missing[name] {
			fields[name] = v
		}
	}
	tags := map[string]string{"operating_mode": string(st.Mode)}
	return influxdb2.NewPoint(s.measurement, tags, fields, st.UpdatedAt)
}

// Close flushes and releases the client.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
