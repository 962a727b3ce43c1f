package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"roverscope/internal/telemetry"
)

// JSONStdoutWriter prints rows as one JSON object per line.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// NewJSONWriter creates a JSONStdoutWriter writing to out.
func NewJSONWriter(out io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{out: out}
}

// WritePose outputs a pose row.
func (w *JSONStdoutWriter) WritePose(row telemetry.PoseRow) error {
	return w.line(row)
}

// WriteHazard outputs a hazard row.
func (w *JSONStdoutWriter) WriteHazard(row telemetry.HazardRow) error {
	return w.line(row)
}

func (w *JSONStdoutWriter) line(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
