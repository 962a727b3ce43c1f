package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"roverscope/internal/telemetry"
)

// Record is one captured inbound envelope.
type Record struct {
	At       time.Time       `json:"at"`
	Envelope json.RawMessage `json:"envelope"`
}

type captureWriter struct {
	mu    sync.Mutex
	enc   *json.Encoder
	first error
}

func newCaptureWriter(w io.Writer) *captureWriter {
	return &captureWriter{enc: json.NewEncoder(w)}
}

// record appends one line. The first write error is kept and reported by
// Close; later records are dropped.
func (c *captureWriter) record(at time.Time, frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.first != nil {
		return
	}
	if err := c.enc.Encode(Record{At: at, Envelope: frame}); err != nil {
		c.first = fmt.Errorf("link: capture: %w", err)
	}
}

func (c *captureWriter) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.first
}

// Replay decodes a capture and hands each event to dispatch in file order.
// A speed > 0 reproduces the recorded gaps divided by speed; speed <= 0
// replays without delay. Envelopes that no longer decode are skipped.
func Replay(ctx context.Context, r io.Reader, dispatch func(telemetry.Event), speed float64) error {
	dec := json.NewDecoder(r)
	var prev time.Time
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("link: replay: %w", err)
		}
		if !prev.IsZero() && speed > 0 {
			diff := time.Duration(float64(rec.At.Sub(prev)) / speed)
			if diff > 0 {
				t := time.NewTimer(diff)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				}
			}
		}
		prev = rec.At
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := telemetry.DecodeEnvelope(rec.Envelope, rec.At)
		if err != nil {
			slog.Debug("link: replay skipped envelope", "at", rec.At, "error", err)
			continue
		}
		dispatch(ev)
	}
}

// ReplayFile opens path and replays it.
func ReplayFile(ctx context.Context, path string, dispatch func(telemetry.Event), speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Replay(ctx, f, dispatch, speed)
}
