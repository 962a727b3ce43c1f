// Package sim runs a synthetic rover server: the telemetry channel and the
// mission HTTP API, backed by telemetry.Generator.
package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"roverscope/internal/telemetry"
)

var (
	ErrUnknownCommand = errors.New("sim: unknown command")
	ErrMissionActive  = errors.New("sim: mission already running")
	ErrNoMission      = errors.New("sim: no mission running")
)

// Mission states.
const (
	MissionRunning  = "running"
	MissionComplete = "complete"
	MissionAborted  = "aborted"
)

// Event records a command the simulator applied.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Details   string    `json:"details,omitempty"`
}

type mission struct {
	id        string
	task      string
	targetM   float64
	travelled float64
	state     string
	startedAt time.Time
	endedAt   time.Time
}

// advance adds distance travelled and completes the mission at its target.
func (m *mission) advance(d float64, now time.Time) {
	if m.state != MissionRunning {
		return
	}
	m.travelled += d
	if m.travelled >= m.targetM {
		m.travelled = m.targetM
		m.state = MissionComplete
		m.endedAt = now
	}
}

func (m *mission) progress() int {
	if m.targetM <= 0 {
		return 100
	}
	return int(math.Min(100, m.travelled/m.targetM*100))
}

func (m *mission) status() *telemetry.MissionStatus {
	msg := fmt.Sprintf("%.2f of %.2f m", m.travelled, m.targetM)
	if m.state != MissionRunning {
		msg = m.state
	}
	return &telemetry.MissionStatus{
		Active:   m.state == MissionRunning,
		Task:     m.task,
		Progress: m.progress(),
		Message:  msg,
	}
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithRand seeds the motion model.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) { s.rng = rng }
}

// WithLegacyEvents names telemetry frames telemetry_update.
func WithLegacyEvents() Option {
	return func(s *Simulator) { s.legacy = true }
}

// Simulator owns one synthetic rover shared by every connected client.
type Simulator struct {
	tickInterval time.Duration
	legacy       bool
	now          func() time.Time
	rng          *rand.Rand

	mu       sync.Mutex
	gen      *telemetry.Generator
	mode     string
	last     *telemetry.Snapshot
	missions []*mission
	captures []string
	events   []Event
	clients  map[uint64]chan []byte
	nextID   uint64
}

// NewSimulator creates a rover in a width×height metre world advancing once
// per tickInterval.
func NewSimulator(width, height float64, tickInterval time.Duration, opts ...Option) *Simulator {
	if tickInterval <= 0 {
		tickInterval = 100 * time.Millisecond
	}
	s := &Simulator{
		tickInterval: tickInterval,
		now:          time.Now,
		mode:         telemetry.ChassisManual,
		clients:      make(map[uint64]chan []byte),
	}
	for _, o := range opts {
		o(s)
	}
	s.gen = telemetry.NewGenerator(width, height, s.rng)
	return s
}

// Mode returns the chassis mode.
func (s *Simulator) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Step advances the rover by one tick. In stop mode the pose is held and
// the drive reads zero.
func (s *Simulator) Step() telemetry.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	var snap telemetry.Snapshot
	if s.mode == telemetry.ChassisStop && s.last != nil {
		snap = *s.last
		snap.Drive = telemetry.Drive{}
		snap.ReceivedAt = now
	} else {
		prev := s.gen.Pose()
		snap = s.gen.Advance(s.tickInterval, now)
		if m := s.active(); m != nil {
			m.advance(math.Hypot(snap.Pose.X-prev.X, snap.Pose.Y-prev.Y), now)
		}
	}
	snap.Mission = nil
	if n := len(s.missions); n > 0 {
		snap.Mission = s.missions[n-1].status()
	}
	snap.Perception.CapturedFiles = append([]string(nil), s.captures...)
	s.last = &snap
	return snap
}

// active returns the running mission. Callers hold mu.
func (s *Simulator) active() *mission {
	if n := len(s.missions); n > 0 && s.missions[n-1].state == MissionRunning {
		return s.missions[n-1]
	}
	return nil
}

// Apply executes an inbound command envelope. Replies are frames to send
// back on the same channel.
func (s *Simulator) Apply(env telemetry.Envelope) (replies [][]byte, err error) {
	switch env.Event {
	case telemetry.ResetMap{}.Name():
		s.ResetMap()
		return [][]byte{telemetry.EncodeReset()}, nil
	case telemetry.SetChassisMode{}.Name():
		var c telemetry.SetChassisMode
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("sim: %s: %w", env.Event, err)
		}
		return nil, s.SetMode(c.Mode)
	case telemetry.StartMission{}.Name():
		var c telemetry.StartMission
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("sim: %s: %w", env.Event, err)
		}
		_, err := s.StartMission(c.Task, c.DistanceCm)
		return nil, err
	case telemetry.AbortMission{}.Name():
		return nil, s.AbortMission()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Event)
	}
}

// ResetMap forgets every discovered crater.
func (s *Simulator) ResetMap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.Reset()
	if s.last != nil {
		s.last.Perception.Map = nil
	}
	s.record(telemetry.ResetMap{}.Name(), "")
}

// SetMode switches the chassis mode.
func (s *Simulator) SetMode(mode string) error {
	switch mode {
	case telemetry.ChassisManual, telemetry.ChassisAutonomous, telemetry.ChassisStop:
	default:
		return fmt.Errorf("sim: bad chassis mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.record(telemetry.SetChassisMode{}.Name(), mode)
	return nil
}

// StartMission begins a traverse of distanceCm and switches the chassis to
// autonomous. It returns the mission ID.
func (s *Simulator) StartMission(task string, distanceCm int) (string, error) {
	if task == "" || distanceCm <= 0 {
		return "", errors.New("sim: task and a positive distance are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active() != nil {
		return "", ErrMissionActive
	}
	m := &mission{
		id:        uuid.NewString(),
		task:      task,
		targetM:   float64(distanceCm) / 100,
		state:     MissionRunning,
		startedAt: s.now(),
	}
	s.missions = append(s.missions, m)
	s.mode = telemetry.ChassisAutonomous
	s.record(telemetry.StartMission{}.Name(), fmt.Sprintf("%s %dcm", task, distanceCm))
	return m.id, nil
}

// AbortMission stops the running mission and the chassis.
func (s *Simulator) AbortMission() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.active()
	if m == nil {
		return ErrNoMission
	}
	m.state = MissionAborted
	m.endedAt = s.now()
	s.mode = telemetry.ChassisStop
	s.record(telemetry.AbortMission{}.Name(), m.id)
	return nil
}

// Capture pretends to save the current camera frame and returns the file
// name, which later snapshots list as captured.
func (s *Simulator) Capture() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := fmt.Sprintf("capture_%03d.jpg", len(s.captures)+1)
	s.captures = append(s.captures, name)
	s.record("capture", name)
	return name
}

// Events returns a copy of the applied commands.
func (s *Simulator) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}

func (s *Simulator) record(cmd, details string) {
	s.events = append(s.events, Event{Timestamp: s.now().UTC(), Command: cmd, Details: details})
}
