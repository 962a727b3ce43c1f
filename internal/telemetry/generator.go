package telemetry

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"math/rand"
	"strconv"
	"time"
)

// Motion model limits at full throttle and full steer.
const (
	MaxSpeed    = 0.8 // m/s
	MaxTurnRate = 2.5 // rad/s
)

const (
	sensorFOV       = math.Pi / 3 // horizontal field of view
	sensorRange     = 2.5         // metres
	craterMergeDist = 0.2
)

// Generator produces a synthetic rover feed: a unicycle drifting around a
// bounded world and discovering craters ahead of it. It backs the simulate
// command and exercises the link end to end in tests.
type Generator struct {
	Width, Height float64
	Resolution    Resolution

	rng     *rand.Rand
	pose    Pose
	drive   Drive
	step    int
	craters []MapDetection
	nextID  int
}

// NewGenerator starts the rover in the centre of a width×height world.
func NewGenerator(width, height float64, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{
		Width:      width,
		Height:     height,
		Resolution: DefaultResolution,
		rng:        rng,
		pose:       Pose{X: width / 2, Y: height / 2, Theta: math.Pi / 2},
	}
}

// Pose returns the current simulated pose.
func (g *Generator) Pose() Pose { return g.pose }

// Craters returns a copy of the discovered hazards.
func (g *Generator) Craters() []MapDetection {
	out := make([]MapDetection, len(g.craters))
	copy(out, g.craters)
	return out
}

// Advance integrates the motion model over dt and returns the new snapshot.
func (g *Generator) Advance(dt time.Duration, now time.Time) Snapshot {
	g.step++
	g.drive.Throttle = clampUnit(g.drive.Throttle + (g.rng.Float64()-0.3)*0.2)
	g.drive.Steering = clampUnit(g.drive.Steering*0.8 + (g.rng.Float64()*2-1)*0.3)

	sec := dt.Seconds()
	speed := g.drive.Throttle * MaxSpeed
	g.pose.X += speed * math.Cos(g.pose.Theta) * sec
	g.pose.Y += speed * math.Sin(g.pose.Theta) * sec
	g.pose.Theta += g.drive.Steering * MaxTurnRate * sec
	g.pose.X = math.Max(0, math.Min(g.Width, g.pose.X))
	g.pose.Y = math.Max(0, math.Min(g.Height, g.pose.Y))

	if g.rng.Float64() < 0.1 {
		g.discover(0.5+g.rng.Float64(), (g.rng.Float64()*2-1)*0.3, 0.05+g.rng.Float64()*0.25, g.rng.Float64()*1.2)
	}

	step := g.step
	pose := g.pose
	return Snapshot{
		Step:  &step,
		Drive: g.drive,
		Pose:  &pose,
		Perception: Perception{
			Live:       g.visible(),
			Map:        g.Craters(),
			Resolution: g.Resolution,
		},
		ReceivedAt: now,
	}
}

// Reset forgets every discovered crater, mirroring a resetMap command.
func (g *Generator) Reset() {
	g.craters = nil
}

// discover places a crater at a forward/lateral offset from the rover unless
// one already sits within craterMergeDist.
func (g *Generator) discover(fwd, lat, radius, depth float64) {
	c, s := math.Cos(g.pose.Theta), math.Sin(g.pose.Theta)
	x := g.pose.X + fwd*c - lat*s
	y := g.pose.Y + fwd*s + lat*c
	if x < 0 || x > g.Width || y < 0 || y > g.Height {
		return
	}
	for _, k := range g.craters {
		if math.Hypot(k.X-x, k.Y-y) < craterMergeDist {
			return
		}
	}
	g.craters = append(g.craters, MapDetection{ID: strconv.Itoa(g.nextID), X: x, Y: y, Radius: radius, Depth: &depth, Label: "crater"})
	g.nextID++
}

// visible projects craters inside the sensor cone onto the image plane.
func (g *Generator) visible() []LiveDetection {
	var live []LiveDetection
	w, h := float64(g.Resolution.W), float64(g.Resolution.H)
	for _, k := range g.craters {
		dx, dy := k.X-g.pose.X, k.Y-g.pose.Y
		dist := math.Hypot(dx, dy)
		if dist == 0 || dist > sensorRange {
			continue
		}
		bearing := math.Remainder(math.Atan2(dy, dx)-g.pose.Theta, 2*math.Pi)
		if math.Abs(bearing) > sensorFOV/2 {
			continue
		}
		cx := w/2 - bearing/(sensorFOV/2)*w/2
		cy := h - dist/sensorRange*h/2
		half := k.Radius / dist * w / 2
		radius := k.Radius
		live = append(live, LiveDetection{
			Label:    "crater",
			Box:      Box{X1: math.Max(0, cx-half), Y1: math.Max(0, cy-half/2), X2: math.Min(w, cx+half), Y2: math.Min(h, cy+half/2)},
			Distance: dist,
			Depth:    k.Depth,
			Radius:   &radius,
		})
	}
	return live
}

// EncodeSnapshot renders a snapshot in the inbound wire format, including the
// legacy event name when legacy is set.
func EncodeSnapshot(s Snapshot, legacy bool) ([]byte, error) {
	w := wireTelemetry{Step: s.Step, Drive: &s.Drive, MissionStatus: s.Mission}
	if len(s.Frame) > 0 {
		w.Frame = base64.StdEncoding.EncodeToString(s.Frame)
	}
	if s.Pose != nil {
		x, y, th := s.Pose.X, s.Pose.Y, s.Pose.Theta
		w.Pose = &wirePose{X: &x, Y: &y, Theta: &th}
	}
	p := wirePerception{CapturedFiles: s.Perception.CapturedFiles}
	for _, l := range s.Perception.Live {
		p.Live = append(p.Live, wireLive{
			Label:    l.Label,
			Box:      []float64{l.Box.X1, l.Box.Y1, l.Box.X2, l.Box.Y2},
			Distance: l.Distance,
			Depth:    l.Depth,
			Radius:   l.Radius,
			TrackID:  l.TrackID,
		})
	}
	for _, m := range s.Perception.Map {
		id, err := json.Marshal(m.ID)
		if err != nil {
			return nil, err
		}
		p.Map = append(p.Map, wireMap{ID: id, X: m.X, Y: m.Y, Radius: m.Radius, Depth: m.Depth, Label: m.Label})
	}
	if s.Perception.Resolution.Known() {
		p.Resolution = []int{s.Perception.Resolution.W, s.Perception.Resolution.H}
	}
	w.Perception = &p

	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	event := string(KindTelemetry)
	if legacy {
		event = "telemetry_update"
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// EncodeReset renders a reset envelope.
func EncodeReset() []byte {
	return []byte(`{"event":"reset","data":{}}`)
}
