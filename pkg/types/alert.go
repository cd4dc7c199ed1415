package types

import (
	"fmt"
	"time"
)

// Severity ranks alerts. Values are ordered so callers can compare with >=.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// MarshalText encodes s as its upper-case name.
func (s Severity) MarshalText() ([]byte, error) {
	n, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("types: invalid severity %d", int(s))
	}
	return []byte(n), nil
}

// UnmarshalText decodes an upper-case severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	for k, n := range severityNames {
		if n == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("types: unknown severity %q", string(b))
}

// AlertType identifies the condition an alert was raised for.
type AlertType int

const (
	AlertCriticalTemperature AlertType = iota + 1
	AlertHighVibration
	AlertLowEfficiency
)

// AlertTypes lists every alert type in evaluation order.
var AlertTypes = []AlertType{AlertCriticalTemperature, AlertHighVibration, AlertLowEfficiency}

var alertTypeNames = map[AlertType]string{
	AlertCriticalTemperature: "CRITICAL_TEMPERATURE",
	AlertHighVibration:       "HIGH_VIBRATION",
	AlertLowEfficiency:       "LOW_EFFICIENCY",
}

func (a AlertType) String() string {
	if n, ok := alertTypeNames[a]; ok {
		return n
	}
	return fmt.Sprintf("AlertType(%d)", int(a))
}

// MarshalText encodes a as its upper-case name.
func (a AlertType) MarshalText() ([]byte, error) {
	n, ok := alertTypeNames[a]
	if !ok {
		return nil, fmt.Errorf("types: invalid alert type %d", int(a))
	}
	return []byte(n), nil
}

// UnmarshalText decodes an upper-case alert type name.
func (a *AlertType) UnmarshalText(b []byte) error {
	for k, n := range alertTypeNames {
		if n == string(b) {
			*a = k
			return nil
		}
	}
	return fmt.Errorf("types: unknown alert type %q", string(b))
}

// Alert is one threshold breach observed in the current cycle.
type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// CloneAlerts returns a copy of alerts that shares no backing array.
func CloneAlerts(alerts []Alert) []Alert {
	if alerts == nil {
		return nil
	}
	return append([]Alert(nil), alerts...)
}
