package api

import (
	"time"

	"github.com/conveyortwin/conveyortwin/internal/scenario"
	"github.com/conveyortwin/conveyortwin/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string     `json:"status"`
	Mode        types.Mode `json:"operating_mode"`
	Degraded    bool       `json:"degraded"`
	Missing     []string   `json:"missing"`
	AlertCount  int        `json:"alert_count"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	GeneratedAt string     `json:"generated_at"` // RFC3339
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type modeResponse struct {
	Previous types.Mode `json:"previous"`
	Mode     types.Mode `json:"operating_mode"`
}

type defectsRequest struct {
	Count int64 `json:"count"`
}

type quickRequest struct {
	Kind scenario.Kind `json:"kind"`
	scenario.QuickParams
}

type speedIncreaseRequest struct {
	TargetSpeed     float64 `json:"target_speed"`
	DurationMinutes float64 `json:"duration_minutes"`
}

type componentFailureRequest struct {
	Component string   `json:"component"`
	Severity  *float64 `json:"severity"`
}

type maintenanceRequest struct {
	MaintenanceType string  `json:"maintenance_type"`
	DurationHours   float64 `json:"duration_hours"`
}

type stressRequest struct {
	DurationMinutes float64 `json:"duration_minutes"`
}

type errorResponse struct {
	Error string `json:"error"`
}
