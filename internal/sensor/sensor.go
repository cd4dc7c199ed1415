package sensor

import (
	"context"
	"fmt"

	"github.com/conveyortwin/conveyortwin/internal/config"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// Source produces one snapshot per call. An error means no snapshot could
// be produced at all; partial data is a snapshot with missing metrics.
type Source interface {
	Read(ctx context.Context) (types.SensorSnapshot, error)
}

// Metrics lists every metric a source looks for.
var Metrics = []string{
	types.MetricConveyorSpeed,
	types.MetricMotorTemperature,
	types.MetricVibrationLevel,
	types.MetricMotorCurrent,
	types.MetricEncoderPosition,
	types.MetricEmergencyStop,
}

// New returns the Source configured by src. OPC UA sources must be started
// with Start before Read returns data.
func New(src config.SourceConfig) (Source, error) {
	switch src.Kind {
	case config.SourceGateway, "":
		return NewGateway(src)
	case config.SourceOPCUA:
		return NewOPCUA(src.OPCUA)
	default:
		return nil, fmt.Errorf("sensor: unsupported source kind %q", src.Kind)
	}
}
