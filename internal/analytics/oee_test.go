package analytics

import (
	"math"
	"testing"

	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestComputeOEE(t *testing.T) {
	tests := []struct {
		name   string
		state  types.OperationalState
		alerts int
		want   OEE
	}{
		{
			name:  "perfect line",
			state: types.OperationalState{Speed: 1.0, ItemsProcessed: 100},
			want:  OEE{OEE: 100, Availability: 100, Performance: 100, Quality: 100},
		},
		{
			name:  "nothing processed counts as full quality",
			state: types.OperationalState{Speed: 1.0},
			want:  OEE{OEE: 100, Availability: 100, Performance: 100, Quality: 100},
		},
		{
			name: "defects and alerts",
			// availability = (1440-10)/1440, performance 0.5, quality 0.9
			state:  types.OperationalState{Speed: 0.5, ItemsProcessed: 200, DefectsCount: 20},
			alerts: 2,
			want: OEE{
				OEE:          1430.0 / 1440 * 0.5 * 0.9 * 100,
				Availability: 1430.0 / 1440 * 100,
				Performance:  50,
				Quality:      90,
			},
		},
		{
			name:  "stopped belt uses speed floor",
			state: types.OperationalState{Speed: 0},
			want:  OEE{OEE: 10, Availability: 100, Performance: 10, Quality: 100},
		},
		{
			name:   "availability never negative",
			state:  types.OperationalState{Speed: 1.0},
			alerts: 500,
			want:   OEE{OEE: 0, Availability: 0, Performance: 100, Quality: 100},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeOEE(tc.state, tc.alerts)
			if !almostEqual(got.OEE, tc.want.OEE, 1e-9) ||
				!almostEqual(got.Availability, tc.want.Availability, 1e-9) ||
				!almostEqual(got.Performance, tc.want.Performance, 1e-9) ||
				!almostEqual(got.Quality, tc.want.Quality, 1e-9) {
				t.Errorf("ComputeOEE = %+v, want %+v", got, tc.want)
			}
		})
	}
}
