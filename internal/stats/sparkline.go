package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"roverscope/internal/telemetry"
)

var bars = []rune("▁▂▃▄▅▆▇█")

// Levels is the number of distinct sparkline heights.
const Levels = 8

// Sparkline compresses samples into at most width bar heights in
// [0, Levels). When there are more samples than columns, neighbouring
// samples are averaged.
func Sparkline(samples []telemetry.DepthSample, width int) []int {
	if width <= 0 || len(samples) == 0 {
		return nil
	}
	xs := Means(samples)
	if len(xs) > width {
		xs = buckets(xs, width)
	}
	lo, hi := floats.Min(xs), floats.Max(xs)
	out := make([]int, len(xs))
	for i, x := range xs {
		if hi == lo {
			out[i] = Levels / 2
			continue
		}
		out[i] = min(Levels-1, int((x-lo)/(hi-lo)*Levels))
	}
	return out
}

// SparklineString renders Sparkline with block glyphs.
func SparklineString(samples []telemetry.DepthSample, width int) string {
	levels := Sparkline(samples, width)
	rs := make([]rune, len(levels))
	for i, l := range levels {
		rs[i] = bars[l]
	}
	return string(rs)
}

func buckets(xs []float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		from := i * len(xs) / n
		to := (i + 1) * len(xs) / n
		out[i] = stat.Mean(xs[from:to], nil)
	}
	return out
}
