package sim

import (
	"context"
	"time"

	"roverscope/internal/logging"
	"roverscope/internal/telemetry"
)

// Run advances the rover every tick and broadcasts the encoded snapshot to
// subscribers until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting simulator", "tick_interval", s.tickInterval)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			log.Info("stopping simulator")
			return
		}
	}
}

func (s *Simulator) tick(ctx context.Context) {
	snap := s.Step()
	data, err := telemetry.EncodeSnapshot(snap, s.legacy)
	if err != nil {
		logging.FromContext(ctx).Error("encode snapshot", "error", err)
		return
	}
	s.broadcast(data)
}

// Subscribe returns a channel of encoded telemetry frames. Slow subscribers
// miss frames rather than stall the rover.
func (s *Simulator) Subscribe() (frames <-chan []byte, cancel func()) {
	ch := make(chan []byte, 16)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.clients[id] = ch
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.clients[id]; ok {
			delete(s.clients, id)
			close(ch)
		}
	}
}

func (s *Simulator) broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}
