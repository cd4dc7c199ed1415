package types

import "fmt"

// Urgency ranks maintenance predictions.
type Urgency int

const (
	UrgencyLow Urgency = iota + 1
	UrgencyMedium
	UrgencyHigh
)

var urgencyNames = map[Urgency]string{
	UrgencyLow:    "LOW",
	UrgencyMedium: "MEDIUM",
	UrgencyHigh:   "HIGH",
}

func (u Urgency) String() string {
	if n, ok := urgencyNames[u]; ok {
		return n
	}
	return fmt.Sprintf("Urgency(%d)", int(u))
}

// MarshalText encodes u as its upper-case name.
func (u Urgency) MarshalText() ([]byte, error) {
	n, ok := urgencyNames[u]
	if !ok {
		return nil, fmt.Errorf("types: invalid urgency %d", int(u))
	}
	return []byte(n), nil
}

// UnmarshalText decodes an upper-case urgency name.
func (u *Urgency) UnmarshalText(b []byte) error {
	for k, n := range urgencyNames {
		if n == string(b) {
			*u = k
			return nil
		}
	}
	return fmt.Errorf("types: unknown urgency %q", string(b))
}

// MaintenancePrediction is recomputed on demand from the current state.
type MaintenancePrediction struct {
	Needed bool `json:"maintenance_needed"`

	// PredictedFailure is empty when no failure is predicted.
	PredictedFailure   string   `json:"predicted_failure,omitempty"`
	RecommendedActions []string `json:"recommended_actions"`
	Urgency            Urgency  `json:"urgency"`
}
