// Package stats aggregates the depth history for gauges and charts.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"roverscope/internal/telemetry"
)

// Summary describes the most recent window of depth samples.
type Summary struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
	Count   int     `json:"count"`
}

// Means extracts the sample values in order.
func Means(samples []telemetry.DepthSample) []float64 {
	xs := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.Mean
	}
	return xs
}

// Summarize aggregates the last m samples. m <= 0 or m > len(samples) uses
// every sample. An empty input yields a zero Summary.
func Summarize(samples []telemetry.DepthSample, m int) Summary {
	if m <= 0 || m > len(samples) {
		m = len(samples)
	}
	if m == 0 {
		return Summary{}
	}
	xs := Means(samples[len(samples)-m:])
	return Summary{
		Current: xs[len(xs)-1],
		Average: stat.Mean(xs, nil),
		Max:     floats.Max(xs),
		Min:     floats.Min(xs),
		Count:   len(xs),
	}
}

// GaugePercent maps value onto a one-sided gauge, 0..100.
func GaugePercent(value, lo, hi float64) float64 {
	if hi == lo || math.IsNaN(value) {
		return 0
	}
	return clamp((value-lo)/(hi-lo)*100, 0, 100)
}

// FillPercent maps value onto a gauge filled from its centre mark: the result
// is signed, -50..50, relative to the larger of |lo| and |hi|.
func FillPercent(value, lo, hi float64) float64 {
	span := math.Max(math.Abs(lo), math.Abs(hi))
	if span == 0 || math.IsNaN(value) {
		return 0
	}
	return clamp(value/span*50, -50, 50)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
