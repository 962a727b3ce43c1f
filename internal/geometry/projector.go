// Package geometry maps world and sensor coordinates onto drawing surfaces.
//
// The world frame has its origin at the bottom-left corner with +Y pointing
// up; screen surfaces have their origin at the top-left with +Y pointing down.
package geometry

import (
	"math"

	"github.com/paulmach/orb"

	"roverscope/internal/telemetry"
)

// Projector maps a W×H metre world onto a Pw×Ph pixel surface.
type Projector struct {
	WorldW, WorldH     float64
	SurfaceW, SurfaceH float64
}

// NewProjector returns a projector. Non-positive sizes are replaced by 1 so
// the mapping never divides by zero.
func NewProjector(worldW, worldH, surfaceW, surfaceH float64) Projector {
	return Projector{
		WorldW:   positive(worldW),
		WorldH:   positive(worldH),
		SurfaceW: positive(surfaceW),
		SurfaceH: positive(surfaceH),
	}
}

// World returns the world rectangle.
func (p Projector) World() orb.Bound {
	return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{p.WorldW, p.WorldH}}
}

// Clamp saturates a world point into the world rectangle.
func (p Projector) Clamp(x, y float64) orb.Point {
	b := p.World()
	return orb.Point{
		math.Max(b.Min.X(), math.Min(b.Max.X(), x)),
		math.Max(b.Min.Y(), math.Min(b.Max.Y(), y)),
	}
}

// ScreenOf maps a world point to surface pixels. Points outside the world
// are clamped onto its edge.
func (p Projector) ScreenOf(x, y float64) orb.Point {
	c := p.Clamp(x, y)
	return orb.Point{
		c.X() / p.WorldW * p.SurfaceW,
		p.SurfaceH - c.Y()/p.WorldH*p.SurfaceH,
	}
}

// ScaleLength converts a world length along X into surface pixels.
func (p Projector) ScaleLength(m float64) float64 {
	return m / p.WorldW * p.SurfaceW
}

// HeadingDegrees converts a world heading in radians (0 along +X,
// counter-clockwise) to a screen rotation in degrees (0 pointing up,
// clockwise).
func HeadingDegrees(theta float64) float64 {
	return telemetry.Pose{Theta: theta}.ScreenHeading()
}

// Marker is the rover glyph position and rotation.
type Marker struct {
	At      orb.Point `json:"at"`
	Heading float64   `json:"heading"`
}

// Marker places the rover.
func (p Projector) Marker(pose telemetry.Pose) Marker {
	return Marker{At: p.ScreenOf(pose.X, pose.Y), Heading: HeadingDegrees(pose.Theta)}
}

// TrailSegment is one drawn step of the position trail.
type TrailSegment struct {
	Line    orb.LineString `json:"line"`
	Opacity float64        `json:"opacity"`
}

// TrailOpacity fades older segments: the i-th segment from the oldest of n
// points is drawn at 0.1 + i/n·0.6.
func TrailOpacity(i, n int) float64 {
	if n <= 0 {
		return 0.1
	}
	return 0.1 + float64(i)/float64(n)*0.6
}

// Trail connects consecutive poses, oldest first.
func (p Projector) Trail(poses []telemetry.Pose) []TrailSegment {
	if len(poses) < 2 {
		return nil
	}
	out := make([]TrailSegment, 0, len(poses)-1)
	for i := 0; i+1 < len(poses); i++ {
		a, b := poses[i], poses[i+1]
		out = append(out, TrailSegment{
			Line:    orb.LineString{p.ScreenOf(a.X, a.Y), p.ScreenOf(b.X, b.Y)},
			Opacity: TrailOpacity(i, len(poses)),
		})
	}
	return out
}

// Path returns the whole trail as one line string.
func (p Projector) Path(poses []telemetry.Pose) orb.LineString {
	ls := make(orb.LineString, len(poses))
	for i, q := range poses {
		ls[i] = p.ScreenOf(q.X, q.Y)
	}
	return ls
}

// HazardMarker is a hazard circle on the surface.
type HazardMarker struct {
	ID     string    `json:"id,omitempty"`
	Label  string    `json:"label,omitempty"`
	Center orb.Point `json:"center"`
	Radius float64   `json:"radius"`
	Depth  *float64  `json:"depth,omitempty"`
}

// Hazards places map detections with radii scaled to the surface.
func (p Projector) Hazards(dets []telemetry.MapDetection) []HazardMarker {
	out := make([]HazardMarker, len(dets))
	for i, d := range dets {
		out[i] = HazardMarker{
			ID:     d.ID,
			Label:  d.Label,
			Center: p.ScreenOf(d.X, d.Y),
			Radius: p.ScaleLength(d.Radius),
			Depth:  d.Depth,
		}
	}
	return out
}

func positive(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 1
	}
	return v
}
