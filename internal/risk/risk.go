// Package risk scores hazards by depth and proximity.
package risk

import (
	"math"

	"roverscope/internal/telemetry"
)

// Tier is a danger level, ordered from Low to Critical.
type Tier int

const (
	Low Tier = iota
	Medium
	High
	Critical
)

func (t Tier) String() string {
	switch t {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	}
	return "unknown"
}

// MarshalText renders the tier name.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Depth and distance breakpoints in metres.
var (
	depthSteps    = [3]float64{0.2, 0.5, 1.0}
	distanceSteps = [3]float64{5.0, 2.0, 1.0}
)

// DepthScore grades depth 0..3, deeper is worse.
func DepthScore(depth float64) int {
	for i, s := range depthSteps {
		if depth < s {
			return i
		}
	}
	return 3
}

// DistanceScore grades distance 0..3, closer is worse.
func DistanceScore(distance float64) int {
	for i, s := range distanceSteps {
		if distance > s {
			return i
		}
	}
	return 3
}

// Classify combines both scores. Either score at its maximum is critical on
// its own; otherwise the sum decides.
func Classify(depth, distance float64) Tier {
	d, p := DepthScore(depth), DistanceScore(distance)
	switch {
	case d == 3 || p == 3:
		return Critical
	case d+p >= 4:
		return High
	case d+p >= 2:
		return Medium
	default:
		return Low
	}
}

// Assessment is the tier of one detection together with the inputs used.
type Assessment struct {
	ID       string  `json:"id,omitempty"`
	Label    string  `json:"label,omitempty"`
	Depth    float64 `json:"depth"`
	Distance float64 `json:"distance"`
	Tier     Tier    `json:"tier"`
}

// AssessLive scores camera detections using their reported distance. A
// missing depth counts as zero.
func AssessLive(dets []telemetry.LiveDetection) []Assessment {
	out := make([]Assessment, len(dets))
	for i, d := range dets {
		depth := deref(d.Depth)
		out[i] = Assessment{Label: d.Label, Depth: depth, Distance: d.Distance, Tier: Classify(depth, d.Distance)}
	}
	return out
}

// AssessMap scores mapped hazards by the gap between the rover and the
// hazard rim.
func AssessMap(pose telemetry.Pose, hazards []telemetry.MapDetection) []Assessment {
	out := make([]Assessment, len(hazards))
	for i, h := range hazards {
		depth := deref(h.Depth)
		dist := RimDistance(pose, h)
		out[i] = Assessment{ID: h.ID, Label: h.Label, Depth: depth, Distance: dist, Tier: Classify(depth, dist)}
	}
	return out
}

// RimDistance is the distance from pose to the hazard edge, floored at zero.
func RimDistance(pose telemetry.Pose, h telemetry.MapDetection) float64 {
	return math.Max(0, math.Hypot(h.X-pose.X, h.Y-pose.Y)-h.Radius)
}

// Worst returns the highest tier in as, or Low when empty.
func Worst(as []Assessment) Tier {
	w := Low
	for _, a := range as {
		if a.Tier > w {
			w = a.Tier
		}
	}
	return w
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
