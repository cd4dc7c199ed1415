package analytics

import (
	"fmt"
)

// Trend classifies the direction of a series.
type Trend int

const (
	TrendInsufficientData Trend = iota + 1
	TrendStable
	TrendIncreasing
	TrendDecreasing
)

var trendNames = map[Trend]string{
	TrendInsufficientData: "INSUFFICIENT_DATA",
	TrendStable:           "STABLE",
	TrendIncreasing:       "INCREASING",
	TrendDecreasing:       "DECREASING",
}

func (t Trend) String() string {
	if n, ok := trendNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Trend(%d)", int(t))
}

// MarshalText encodes t as its upper-case name.
func (t Trend) MarshalText() ([]byte, error) {
	n, ok := trendNames[t]
	if !ok {
		return nil, fmt.Errorf("analytics: invalid trend %d", int(t))
	}
	return []byte(n), nil
}

// UnmarshalText decodes an upper-case trend name.
func (t *Trend) UnmarshalText(b []byte) error {
	for k, n := range trendNames {
		if n == string(b) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("analytics: unknown trend %q", string(b))
}

// DefaultWindow is the number of trailing points a trend is fitted over.
const DefaultWindow = 10

// slopeThreshold separates a trend from noise, in units per sample.
const slopeThreshold = 0.1

// TrendAnalysis fits a least-squares line through the last window points
// of values and classifies its slope. Fewer than window points yield
// TrendInsufficientData.
func TrendAnalysis(values []float64, window int) Trend {
	if window < 2 {
		window = 2
	}
	if len(values) < window {
		return TrendInsufficientData
	}
	slope := Slope(values[len(values)-window:])
	switch {
	case slope > slopeThreshold:
		return TrendIncreasing
	case slope < -slopeThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// Slope returns the least-squares slope of ys against x = 0, 1, 2, ...
// It returns 0 for fewer than two points.
func Slope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}
