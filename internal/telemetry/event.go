package telemetry

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind names an inbound event on the telemetry channel.
type Kind string

const (
	KindTelemetry Kind = "telemetry"
	KindReset     Kind = "reset"
)

// kindAliases maps legacy server event names onto the canonical kinds.
var kindAliases = map[string]Kind{
	"telemetry":        KindTelemetry,
	"telemetry_update": KindTelemetry,
	"reset":            KindReset,
	"reset_map":        KindReset,
}

var (
	// ErrMalformed marks a frame whose shape could not be decoded.
	ErrMalformed = errors.New("telemetry: malformed payload")
	// ErrUnknownEvent marks a well-formed envelope with an unsupported kind.
	ErrUnknownEvent = errors.New("telemetry: unknown event")
)

// Event is the closed set of inbound events. Use a type switch on
// TelemetryEvent and ResetEvent.
type Event interface {
	Kind() Kind
	isEvent()
}

// TelemetryEvent carries a decoded snapshot.
type TelemetryEvent struct {
	Snapshot Snapshot
}

// ResetEvent asks consumers to clear accumulated history.
type ResetEvent struct {
	ReceivedAt time.Time
}

func (TelemetryEvent) Kind() Kind { return KindTelemetry }
func (TelemetryEvent) isEvent()   {}
func (ResetEvent) Kind() Kind     { return KindReset }
func (ResetEvent) isEvent()       {}

// Envelope is the framing used on the wire in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses one inbound frame. Errors wrap ErrMalformed or
// ErrUnknownEvent.
func DecodeEnvelope(frame []byte, receivedAt time.Time) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	kind, ok := kindAliases[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	switch kind {
	case KindReset:
		return ResetEvent{ReceivedAt: receivedAt}, nil
	default:
		snap, err := DecodeTelemetry(env.Data, receivedAt)
		if err != nil {
			return nil, err
		}
		return TelemetryEvent{Snapshot: snap}, nil
	}
}

type wirePose struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Theta *float64 `json:"theta"`
}

type wireLive struct {
	Label     string    `json:"label"`
	Box       []float64 `json:"box"`
	BoxFormat string    `json:"boxFormat"`
	Distance  float64   `json:"distance"`
	Depth     *float64  `json:"depth"`
	Radius    *float64  `json:"radius"`
	TrackID   *int      `json:"trackId"`
}

type wireMap struct {
	ID     json.RawMessage `json:"id"`
	X      float64         `json:"x"`
	Y      float64         `json:"y"`
	Radius float64         `json:"radius"`
	Depth  *float64        `json:"depth"`
	Label  string          `json:"label"`
}

// wireCrater is a live detection as the rover's vision system emits it:
// depth holds the estimated distance to the crater.
type wireCrater struct {
	Label   string    `json:"label"`
	Box     []float64 `json:"box"`
	Depth   float64   `json:"depth"`
	RadiusM *float64  `json:"radius_m"`
	TrackID *int      `json:"track_id"`
}

type wirePerception struct {
	Live          []wireLive `json:"live"`
	Map           []wireMap  `json:"map"`
	Resolution    []int      `json:"resolution"`
	CapturedFiles []string   `json:"capturedFiles"`

	LiveCraters []wireCrater `json:"live_craters"`
	MapCraters  []wireMap    `json:"map_craters"`
}

// wireRover is the nested drive and pose block of telemetry_update frames.
type wireRover struct {
	Throttle float64   `json:"throttle"`
	Steering float64   `json:"steering"`
	Pose     *wirePose `json:"pose"`
}

type wireTelemetry struct {
	Step          *int            `json:"step"`
	Frame         string          `json:"frame"`
	Drive         *Drive          `json:"drive"`
	Pose          *wirePose       `json:"pose"`
	Perception    *wirePerception `json:"perception"`
	MissionStatus *MissionStatus  `json:"missionStatus"`

	ImgBase64 string     `json:"img_base64"`
	Rover     *wireRover `json:"telemetry"`
}

// fold moves fields of the rover server's own layout onto the canonical
// ones. Canonical fields win when both are present.
func (w *wireTelemetry) fold() {
	if w.Frame == "" {
		w.Frame = w.ImgBase64
	}
	if r := w.Rover; r != nil {
		if w.Drive == nil {
			w.Drive = &Drive{Throttle: r.Throttle, Steering: r.Steering}
		}
		if w.Pose == nil {
			w.Pose = r.Pose
		}
	}
	if p := w.Perception; p != nil {
		if p.Live == nil {
			for _, c := range p.LiveCraters {
				p.Live = append(p.Live, wireLive{
					Label:    c.Label,
					Box:      c.Box,
					Distance: c.Depth,
					Radius:   c.RadiusM,
					TrackID:  c.TrackID,
				})
			}
		}
		if p.Map == nil {
			p.Map = p.MapCraters
		}
	}
}

func (w *wireTelemetry) empty() bool {
	return w.Step == nil && w.Frame == "" && w.Drive == nil && w.Pose == nil &&
		w.Perception == nil && w.MissionStatus == nil
}

// DecodeTelemetry validates a telemetry payload and converts it to a Snapshot.
func DecodeTelemetry(data []byte, receivedAt time.Time) (Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Snapshot{}, fmt.Errorf("%w: telemetry payload is not an object", ErrMalformed)
	}
	var w wireTelemetry
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	w.fold()
	if w.empty() {
		return Snapshot{}, fmt.Errorf("%w: telemetry payload has no known fields", ErrMalformed)
	}

	snap := Snapshot{Step: w.Step, ReceivedAt: receivedAt, Mission: w.MissionStatus}
	if w.Frame != "" {
		frame, err := decodeFrame(w.Frame)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: frame: %v", ErrMalformed, err)
		}
		snap.Frame = frame
	}
	if w.Drive != nil {
		snap.Drive = Drive{Throttle: clampUnit(w.Drive.Throttle), Steering: clampUnit(w.Drive.Steering)}
	}
	if w.Pose != nil {
		if w.Pose.X == nil || w.Pose.Y == nil {
			return Snapshot{}, fmt.Errorf("%w: pose requires x and y", ErrMalformed)
		}
		p := Pose{X: *w.Pose.X, Y: *w.Pose.Y}
		if w.Pose.Theta != nil {
			p.Theta = *w.Pose.Theta
		}
		snap.Pose = &p
	}
	if w.Perception != nil {
		per, err := decodePerception(*w.Perception)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Perception = per
	}
	if m := snap.Mission; m != nil {
		m.Progress = max(0, min(100, m.Progress))
	}
	return snap, nil
}

func decodePerception(w wirePerception) (Perception, error) {
	var p Perception
	for i, l := range w.Live {
		box, err := decodeBox(l.Box, l.BoxFormat)
		if err != nil {
			return Perception{}, fmt.Errorf("%w: live[%d]: %v", ErrMalformed, i, err)
		}
		if math.IsNaN(l.Distance) || l.Distance < 0 {
			return Perception{}, fmt.Errorf("%w: live[%d]: invalid distance %v", ErrMalformed, i, l.Distance)
		}
		p.Live = append(p.Live, LiveDetection{
			Label:    l.Label,
			Box:      box,
			Distance: l.Distance,
			Depth:    l.Depth,
			Radius:   l.Radius,
			TrackID:  l.TrackID,
		})
	}
	for i, m := range w.Map {
		id, err := decodeID(m.ID)
		if err != nil {
			return Perception{}, fmt.Errorf("%w: map[%d]: %v", ErrMalformed, i, err)
		}
		p.Map = append(p.Map, MapDetection{
			ID:     id,
			X:      m.X,
			Y:      m.Y,
			Radius: math.Max(0, m.Radius),
			Depth:  m.Depth,
			Label:  m.Label,
		})
	}
	switch len(w.Resolution) {
	case 0:
	case 2:
		p.Resolution = Resolution{W: w.Resolution[0], H: w.Resolution[1]}
	default:
		return Perception{}, fmt.Errorf("%w: resolution must have 2 elements, got %d", ErrMalformed, len(w.Resolution))
	}
	p.CapturedFiles = w.CapturedFiles
	return p, nil
}

// decodeBox accepts corner ("xyxy", default) or origin+size ("xywh") boxes and
// always returns corners with X1<=X2 and Y1<=Y2.
func decodeBox(v []float64, format string) (Box, error) {
	if len(v) != 4 {
		return Box{}, fmt.Errorf("box must have 4 elements, got %d", len(v))
	}
	var b Box
	switch strings.ToLower(format) {
	case "", "xyxy":
		b = Box{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	case "xywh":
		b = Box{X1: v[0], Y1: v[1], X2: v[0] + v[2], Y2: v[1] + v[3]}
	default:
		return Box{}, fmt.Errorf("unknown box format %q", format)
	}
	if b.X2 < b.X1 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y2 < b.Y1 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b, nil
}

// decodeID accepts string or numeric hazard ids.
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number")
	}
	return n.String(), nil
}

func decodeFrame(s string) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
