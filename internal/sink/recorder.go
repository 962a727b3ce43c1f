package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"roverscope/internal/risk"
	"roverscope/internal/store"
	"roverscope/internal/telemetry"
)

// Recorder turns store views into pose and hazard rows. Every new packet
// yields one pose row; a hazard row is written when a hazard is first seen
// or its tier changes.
type Recorder struct {
	poses   PoseWriter
	hazards HazardWriter
	session string
	log     *slog.Logger

	views   chan store.View
	seen    atomic.Uint64
	dropped atomic.Uint64

	// owned by Record
	lastPacket uint64
	tiers      map[string]risk.Tier
	anonIDs    map[string]string
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSession overrides the generated session ID.
func WithSession(id string) RecorderOption {
	return func(r *Recorder) { r.session = id }
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.log = l }
}

// WithQueue sets how many views may wait for Run before new ones are dropped.
func WithQueue(n int) RecorderOption {
	return func(r *Recorder) { r.views = make(chan store.View, max(1, n)) }
}

// NewRecorder creates a recorder. hazards may be nil to record poses only.
func NewRecorder(poses PoseWriter, hazards HazardWriter, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		poses:   poses,
		hazards: hazards,
		session: uuid.NewString(),
		log:     slog.Default(),
		views:   make(chan store.View, 64),
		tiers:   make(map[string]risk.Tier),
		anonIDs: make(map[string]string),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Session returns the session ID stamped on every row.
func (r *Recorder) Session() string { return r.session }

// Dropped returns how many views were discarded because Run fell behind.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Observe queues views carrying a new packet for Run. It never blocks, so it
// can be registered with store.Observe directly.
func (r *Recorder) Observe(v store.View) {
	if !v.HasSnapshot || v.Packets == r.seen.Load() {
		return
	}
	r.seen.Store(v.Packets)
	select {
	case r.views <- v:
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued views until ctx is done, then drains what is already
// queued. Write errors are logged and recording continues.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case v := <-r.views:
			r.record(v)
		case <-ctx.Done():
			for {
				select {
				case v := <-r.views:
					r.record(v)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) record(v store.View) {
	if err := r.Record(v); err != nil {
		r.log.Warn("recorder: write failed", "session", r.session, "err", err)
	}
}

// Record writes the rows for one view. Views whose packet was already
// recorded are ignored. Record is not safe for concurrent use.
func (r *Recorder) Record(v store.View) error {
	if !v.HasSnapshot || v.Packets <= r.lastPacket {
		return nil
	}
	r.lastPacket = v.Packets

	row, ok := telemetry.PoseRowOf(r.session, v.Snapshot)
	if !ok {
		return nil
	}
	if err := r.poses.WritePose(row); err != nil {
		return fmt.Errorf("pose: %w", err)
	}
	if r.hazards == nil {
		return nil
	}
	if err := WriteHazards(r.hazards, r.hazardRows(v.Snapshot)); err != nil {
		return fmt.Errorf("hazards: %w", err)
	}
	return nil
}

func (r *Recorder) hazardRows(s telemetry.Snapshot) []telemetry.HazardRow {
	hazards := s.Perception.Map
	if len(hazards) == 0 {
		// an empty map follows a reset; forget what was recorded
		clear(r.tiers)
		return nil
	}
	var rows []telemetry.HazardRow
	for i, a := range risk.AssessMap(*s.Pose, hazards) {
		h := hazards[i]
		id := r.hazardID(h)
		if prev, ok := r.tiers[id]; ok && prev == a.Tier {
			continue
		}
		r.tiers[id] = a.Tier
		rows = append(rows, telemetry.HazardRow{
			SessionID: r.session,
			HazardID:  id,
			Label:     h.Label,
			X:         h.X,
			Y:         h.Y,
			Radius:    h.Radius,
			Depth:     a.Depth,
			Distance:  a.Distance,
			Tier:      a.Tier.String(),
			Timestamp: s.ReceivedAt,
		})
	}
	return rows
}

// hazardID returns h.ID, or a stable generated ID for hazards the server
// left unnamed.
func (r *Recorder) hazardID(h telemetry.MapDetection) string {
	if h.ID != "" {
		return h.ID
	}
	key := fmt.Sprintf("%s@%.2f,%.2f", h.Label, h.X, h.Y)
	id, ok := r.anonIDs[key]
	if !ok {
		id = uuid.NewString()
		r.anonIDs[key] = id
	}
	return id
}
