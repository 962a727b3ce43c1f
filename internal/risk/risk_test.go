package risk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roverscope/internal/telemetry"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		depth, distance float64
		want            Tier
	}{
		{1.5, 0.5, Critical},
		{0.1, 10, Low},
		{1.0, 10, Critical},  // depth alone
		{0.0, 1.0, Critical}, // distance alone, boundary is inclusive
		{0.6, 1.5, High},     // 2 + 2
		{0.6, 3, Medium},     // 2 + 1
		{0.3, 4, Medium},     // 1 + 1
		{0.3, 6, Low},        // 1 + 0
		{0.19, 5.0, Low},     // 0 + 1
		{0.2, 2.0, Medium},   // 1 + 2
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.depth, c.distance), "depth=%v distance=%v", c.depth, c.distance)
	}
}

func TestClassifyIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		assert.Equal(t, Critical, Classify(1.5, 0.5))
	}
}

func TestScores(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 3}, []int{DepthScore(0.1), DepthScore(0.2), DepthScore(0.5), DepthScore(1.0)})
	assert.Equal(t, []int{0, 1, 2, 3}, []int{DistanceScore(5.1), DistanceScore(5.0), DistanceScore(2.0), DistanceScore(1.0)})
}

func TestAssessMap(t *testing.T) {
	deep := 1.2
	shallow := 0.1
	hz := []telemetry.MapDetection{
		{ID: "a", X: 3, Y: 4, Radius: 1, Depth: &shallow},
		{ID: "b", X: 0.5, Y: 0, Radius: 1, Depth: &deep},
		{ID: "c", X: 20, Y: 0, Radius: 0.5},
	}
	got := AssessMap(telemetry.Pose{}, hz)
	require.Len(t, got, 3)

	assert.InDelta(t, 4, got[0].Distance, 1e-12)
	assert.Equal(t, Low, got[0].Tier)
	assert.Equal(t, 0.0, got[1].Distance)
	assert.Equal(t, Critical, got[1].Tier)
	assert.Equal(t, 0.0, got[2].Depth)
	assert.Equal(t, Low, got[2].Tier)
	assert.Equal(t, Critical, Worst(got))
	assert.Equal(t, Low, Worst(nil))
}

func TestAssessLive(t *testing.T) {
	d := 0.6
	got := AssessLive([]telemetry.LiveDetection{{Label: "crater", Distance: 1.5, Depth: &d}, {Distance: 8}})
	require.Len(t, got, 2)
	assert.Equal(t, High, got[0].Tier)
	assert.Equal(t, Low, got[1].Tier)
}

func TestTierJSON(t *testing.T) {
	b, err := json.Marshal(Assessment{Tier: High})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tier":"high"`)
	assert.Equal(t, "unknown", Tier(9).String())
}
