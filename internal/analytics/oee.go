package analytics

import (
	"math"

	"github.com/conveyortwin/conveyortwin/pkg/types"
)

const (
	// plannedMinutes is the production time OEE availability is measured
	// against: one day.
	plannedMinutes = 24 * 60

	// downtimePerAlert is the downtime charged for each active alert.
	downtimePerAlert = 5

	idealCycleTime = 1.0
	minSpeed       = 0.1
)

// OEE holds overall equipment effectiveness and its factors, in percent.
type OEE struct {
	OEE          float64 `json:"oee"`
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
}

// ComputeOEE derives OEE from a state and the number of active alerts.
//
//	availability = max(0, (1440 − 5·alerts) / 1440)
//	performance  = ideal_cycle / (1 / max(speed, 0.1))
//	quality      = (items − defects) / items, 1 when nothing was processed
func ComputeOEE(s types.OperationalState, activeAlerts int) OEE {
	availability := math.Max(0, float64(plannedMinutes-downtimePerAlert*activeAlerts)/plannedMinutes)
	performance := idealCycleTime / (1 / math.Max(s.Speed, minSpeed))
	quality := 1.0
	if s.ItemsProcessed > 0 {
		quality = float64(s.ItemsProcessed-s.DefectsCount) / float64(s.ItemsProcessed)
	}
	return OEE{
		OEE:          availability * performance * quality * 100,
		Availability: availability * 100,
		Performance:  performance * 100,
		Quality:      quality * 100,
	}
}
