// Package store keeps the latest rover snapshot, its bounded histories and
// the mission clock, and publishes read-only views to observers.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"roverscope/internal/link"
	"roverscope/internal/ring"
	"roverscope/internal/telemetry"
)

// Default history capacities.
const (
	DefaultPositionCap = 100
	DefaultDepthCap    = 50
)

// Observer receives a view after every mutation.
type Observer func(View)

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides the history capacities.
func WithCapacity(positions, depths int) Option {
	return func(s *Store) {
		s.positions = ring.New[telemetry.Pose](positions)
		s.depths = ring.New[telemetry.DepthSample](depths)
	}
}

// WithClock overrides the wall clock used for the mission timer and depth
// sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTickInterval overrides the clock tick period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Store) { s.tickInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

type observerEntry struct {
	id uint64
	fn Observer
}

// Store is the single owner of telemetry state. Mutations come from the link
// dispatch goroutine and the clock ticker; both are serialized on mu.
// Observers are invoked under pubMu so they see views in mutation order and
// must not mutate the store themselves.
type Store struct {
	mu           sync.Mutex
	pubMu        sync.Mutex
	log          *slog.Logger
	now          func() time.Time
	start        time.Time
	tickInterval time.Duration

	snapshot    telemetry.Snapshot
	hasSnapshot bool
	connected   bool
	positions   *ring.Buffer[telemetry.Pose]
	depths      *ring.Buffer[telemetry.DepthSample]
	packets     uint64
	malformed   uint64
	lastPacket  time.Time

	observers []observerEntry
	nextID    uint64
}

// New creates a store. The mission clock starts now.
func New(opts ...Option) *Store {
	s := &Store{
		log:          slog.Default(),
		now:          time.Now,
		tickInterval: time.Second,
		positions:    ring.New[telemetry.Pose](DefaultPositionCap),
		depths:       ring.New[telemetry.DepthSample](DefaultDepthCap),
	}
	for _, o := range opts {
		o(s)
	}
	s.start = s.now()
	return s
}

// Apply folds one inbound event into the state.
func (s *Store) Apply(ev telemetry.Event) {
	s.mutate(func() {
		switch e := ev.(type) {
		case telemetry.TelemetryEvent:
			s.applyTelemetry(e.Snapshot)
		case telemetry.ResetEvent:
			s.positions.Reset()
			s.depths.Reset()
			s.log.Debug("store: histories cleared")
		}
	})
}

func (s *Store) applyTelemetry(snap telemetry.Snapshot) {
	s.snapshot = snap
	s.hasSnapshot = true
	s.packets++
	s.lastPacket = snap.ReceivedAt
	if s.lastPacket.IsZero() {
		s.lastPacket = s.now()
	}
	if snap.Pose != nil {
		s.positions.Push(*snap.Pose)
	}
	// detection-free packets leave a gap rather than a zero sample
	if mean, ok := snap.MeanLiveDistance(); ok {
		s.depths.Push(telemetry.DepthSample{At: s.now(), Mean: mean})
	}
}

// RecordDrop counts a frame the link discarded. Only malformed payloads are
// counted; unknown event kinds are ignored.
func (s *Store) RecordDrop(err error) {
	if !errors.Is(err, telemetry.ErrMalformed) {
		return
	}
	s.mutate(func() { s.malformed++ })
}

// SetConnected records the channel state.
func (s *Store) SetConnected(connected bool) {
	s.mutate(func() { s.connected = connected })
}

// View returns a copy of the current state.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// MissionClock formats the current mission time.
func (s *Store) MissionClock() string {
	return s.View().MissionClock()
}

// Observe registers fn and returns a function that removes it.
func (s *Store) Observe(fn Observer) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Run publishes a view on every clock tick until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-ctx.Done():
			return
		}
	}
}

// tick publishes the advancing mission clock.
func (s *Store) tick() {
	s.mutate(func() {})
}

// Attach wires the store to a link manager and starts the clock. detach
// stops the clock and unsubscribes; once it returns neither the ticker nor
// a link callback touches the store again.
func (s *Store) Attach(ctx context.Context, m *link.Manager) (detach func()) {
	unsubscribe := m.Subscribe(link.ListenerFuncs{
		Connect:    func() { s.SetConnected(true) },
		Disconnect: func() { s.SetConnected(false) },
		Message:    s.Apply,
		Drop:       s.RecordDrop,
	})
	if m.IsConnected() {
		s.SetConnected(true)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			unsubscribe()
		})
	}
}

func (s *Store) mutate(fn func()) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	fn()
	v := s.viewLocked()
	obs := make([]Observer, len(s.observers))
	for i, o := range s.observers {
		obs[i] = o.fn
	}
	s.mu.Unlock()

	for _, o := range obs {
		o(v)
	}
}

func (s *Store) viewLocked() View {
	elapsed := s.now().Sub(s.start)
	if elapsed < 0 {
		elapsed = 0
	}
	return View{
		Snapshot:           s.snapshot.Clone(),
		HasSnapshot:        s.hasSnapshot,
		Connected:          s.connected,
		MissionTimeSeconds: int64(elapsed / time.Second),
		PositionHistory:    s.positions.Slice(),
		DepthHistory:       s.depths.Slice(),
		Packets:            s.packets,
		Malformed:          s.malformed,
		LastPacketAt:       s.lastPacket,
	}
}
