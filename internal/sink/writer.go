// Package sink records rover poses and hazard observations to stdout, JSONL
// files or GreptimeDB.
package sink

import "roverscope/internal/telemetry"

// PoseWriter persists pose rows.
type PoseWriter interface {
	WritePose(telemetry.PoseRow) error
}

// HazardWriter persists hazard rows.
type HazardWriter interface {
	WriteHazard(telemetry.HazardRow) error
}

type batchPoseWriter interface {
	WritePoses([]telemetry.PoseRow) error
}

type batchHazardWriter interface {
	WriteHazards([]telemetry.HazardRow) error
}

// WriteHazards sends rows to w in one batch when it supports batching.
func WriteHazards(w HazardWriter, rows []telemetry.HazardRow) error {
	if len(rows) == 0 {
		return nil
	}
	if bw, ok := w.(batchHazardWriter); ok {
		return bw.WriteHazards(rows)
	}
	for _, r := range rows {
		if err := w.WriteHazard(r); err != nil {
			return err
		}
	}
	return nil
}

// WritePoses sends rows to w in one batch when it supports batching.
func WritePoses(w PoseWriter, rows []telemetry.PoseRow) error {
	if len(rows) == 0 {
		return nil
	}
	if bw, ok := w.(batchPoseWriter); ok {
		return bw.WritePoses(rows)
	}
	for _, r := range rows {
		if err := w.WritePose(r); err != nil {
			return err
		}
	}
	return nil
}
