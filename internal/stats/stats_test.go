package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"roverscope/internal/telemetry"
)

func samples(vs ...float64) []telemetry.DepthSample {
	out := make([]telemetry.DepthSample, len(vs))
	for i, v := range vs {
		out[i] = telemetry.DepthSample{At: time.Unix(int64(i), 0), Mean: v}
	}
	return out
}

func TestSummarize(t *testing.T) {
	s := Summarize(samples(1, 4, 2, 3), 0)
	assert.Equal(t, Summary{Current: 3, Average: 2.5, Max: 4, Min: 1, Count: 4}, s)

	s = Summarize(samples(1, 4, 2, 3), 2)
	assert.Equal(t, Summary{Current: 3, Average: 2.5, Max: 3, Min: 2, Count: 2}, s)

	s = Summarize(samples(1, 4), 10)
	assert.Equal(t, 2, s.Count)

	assert.Equal(t, Summary{}, Summarize(nil, 5))
}

func TestFillPercent(t *testing.T) {
	assert.Equal(t, 0.0, FillPercent(0, -1, 1))
	assert.Equal(t, 50.0, FillPercent(1, -1, 1))
	assert.Equal(t, -25.0, FillPercent(-0.5, -1, 1))
	assert.Equal(t, 50.0, FillPercent(3, -1, 1))
	assert.Equal(t, 25.0, FillPercent(1, -2, 1))
	assert.Equal(t, 0.0, FillPercent(1, 0, 0))
}

func TestGaugePercent(t *testing.T) {
	assert.Equal(t, 50.0, GaugePercent(0, -1, 1))
	assert.Equal(t, 100.0, GaugePercent(5, 0, 2))
	assert.Equal(t, 0.0, GaugePercent(-1, 0, 2))
	assert.InDelta(t, 25, GaugePercent(0.5, 0, 2), 1e-12)
	assert.Equal(t, 0.0, GaugePercent(1, 1, 1))
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, []int{0, 4, 7}, Sparkline(samples(0, 0.5, 1), 10))
	assert.Equal(t, []int{4, 4}, Sparkline(samples(2, 2), 10))
	assert.Nil(t, Sparkline(nil, 10))
	assert.Nil(t, Sparkline(samples(1), 0))

	// four samples into two columns average pairwise
	assert.Equal(t, []int{0, 7}, Sparkline(samples(0, 1, 3, 4), 2))
	assert.Equal(t, "▁▅█", SparklineString(samples(0, 0.5, 1), 10))
}
