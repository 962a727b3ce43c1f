// Telemetry model shared by the link, store and presentation layers
package telemetry

import (
	"math"
	"slices"
	"time"
)

// Pose is the rover position in the world frame. Theta is the heading in
// radians, 0 facing +X.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// ScreenHeading is the heading as a screen rotation in degrees: 0 pointing
// up, clockwise.
func (p Pose) ScreenHeading() float64 {
	return -p.Theta*180/math.Pi + 90
}

// Drive holds the commanded actuation, both values in [-1, 1].
type Drive struct {
	Throttle float64 `json:"throttle"`
	Steering float64 `json:"steering"`
}

// Box is a detection rectangle in sensor pixels, always stored as corners.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// LiveDetection is an object seen in the current camera frame. It is replaced
// wholesale by every packet.
type LiveDetection struct {
	Label    string   `json:"label,omitempty"`
	Box      Box      `json:"box"`
	Distance float64  `json:"distance"`
	Depth    *float64 `json:"depth,omitempty"`
	Radius   *float64 `json:"radius,omitempty"`
	TrackID  *int     `json:"track_id,omitempty"`
}

// MapDetection is a hazard fixed in world coordinates.
type MapDetection struct {
	ID     string   `json:"id,omitempty"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Radius float64  `json:"radius"`
	Depth  *float64 `json:"depth,omitempty"`
	Label  string   `json:"label,omitempty"`
}

// Resolution is the native sensor size in pixels.
type Resolution struct {
	W int `json:"w"`
	H int `json:"h"`
}

// DefaultResolution is assumed when a packet does not report one.
var DefaultResolution = Resolution{W: 416, H: 416}

// Known reports whether both dimensions are positive.
func (r Resolution) Known() bool { return r.W > 0 && r.H > 0 }

// Perception groups the detections carried by one packet.
type Perception struct {
	Live          []LiveDetection `json:"live"`
	Map           []MapDetection  `json:"map"`
	Resolution    Resolution      `json:"resolution"`
	CapturedFiles []string        `json:"captured_files,omitempty"`
}

// MissionStatus mirrors the server's mission progress report.
type MissionStatus struct {
	Active   bool   `json:"active"`
	Task     string `json:"task"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// Snapshot is one fully decoded telemetry packet.
type Snapshot struct {
	Step       *int           `json:"step,omitempty"`
	Frame      []byte         `json:"-"`
	Drive      Drive          `json:"drive"`
	Pose       *Pose          `json:"pose,omitempty"`
	Perception Perception     `json:"perception"`
	Mission    *MissionStatus `json:"mission,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Clone returns a copy of s that shares no memory with it.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Step = clonePtr(s.Step)
	c.Frame = slices.Clone(s.Frame)
	c.Pose = clonePtr(s.Pose)
	c.Mission = clonePtr(s.Mission)
	c.Perception.Live = slices.Clone(s.Perception.Live)
	for i := range c.Perception.Live {
		d := &c.Perception.Live[i]
		d.Depth, d.Radius, d.TrackID = clonePtr(d.Depth), clonePtr(d.Radius), clonePtr(d.TrackID)
	}
	c.Perception.Map = slices.Clone(s.Perception.Map)
	for i := range c.Perception.Map {
		c.Perception.Map[i].Depth = clonePtr(c.Perception.Map[i].Depth)
	}
	c.Perception.CapturedFiles = slices.Clone(s.Perception.CapturedFiles)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MeanLiveDistance averages the distance of every live detection. ok is false
// when the packet carries none.
func (s Snapshot) MeanLiveDistance() (mean float64, ok bool) {
	if len(s.Perception.Live) == 0 {
		return 0, false
	}
	var sum float64
	for _, d := range s.Perception.Live {
		sum += d.Distance
	}
	return sum / float64(len(s.Perception.Live)), true
}

// DepthSample is one point of the depth history.
type DepthSample struct {
	At   time.Time `json:"at"`
	Mean float64   `json:"mean"`
}
