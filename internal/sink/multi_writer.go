package sink

import "roverscope/internal/telemetry"

// MultiWriter fans rows out to several writers, stopping at the first error.
type MultiWriter struct {
	poses   []PoseWriter
	hazards []HazardWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(pws []PoseWriter, hws []HazardWriter) *MultiWriter {
	return &MultiWriter{poses: pws, hazards: hws}
}

// WritePose sends a pose row to all pose writers.
func (mw *MultiWriter) WritePose(row telemetry.PoseRow) error {
	for _, w := range mw.poses {
		if err := w.WritePose(row); err != nil {
			return err
		}
	}
	return nil
}

// WritePoses sends rows to all pose writers, batching where supported.
func (mw *MultiWriter) WritePoses(rows []telemetry.PoseRow) error {
	for _, w := range mw.poses {
		if err := WritePoses(w, rows); err != nil {
			return err
		}
	}
	return nil
}

// WriteHazard sends a hazard row to all hazard writers.
func (mw *MultiWriter) WriteHazard(row telemetry.HazardRow) error {
	for _, w := range mw.hazards {
		if err := w.WriteHazard(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteHazards sends rows to all hazard writers, batching where supported.
func (mw *MultiWriter) WriteHazards(rows []telemetry.HazardRow) error {
	for _, w := range mw.hazards {
		if err := WriteHazards(w, rows); err != nil {
			return err
		}
	}
	return nil
}
