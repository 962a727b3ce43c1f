package main

import (
	"io"

	"roverscope/internal/config"
	"roverscope/internal/sink"
)

// newWriters sets up pose and hazard writers from the sink config. GreptimeDB
// is used when an endpoint is configured and printOnly is off; otherwise rows
// go to out as JSON lines, or nowhere when out is nil. A log file adds a
// JSONL copy with hazards in <log-file>.hazards. The returned writers are
// nil when nothing records.
func newWriters(cfg config.Sink, printOnly bool, out io.Writer) (sink.PoseWriter, sink.HazardWriter, func(), error) {
	cleanup := func() {}

	pw, hw, err := baseWriters(cfg, printOnly, out)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.LogFile == "" {
		return pw, hw, cleanup, nil
	}

	fw, err := sink.NewFileWriter(cfg.LogFile, cfg.LogFile+".hazards")
	if err != nil {
		return nil, nil, nil, err
	}
	pws := []sink.PoseWriter{fw}
	hws := []sink.HazardWriter{fw}
	if pw != nil {
		pws = append(pws, pw)
		hws = append(hws, hw)
	}
	mw := sink.NewMultiWriter(pws, hws)
	cleanup = func() { fw.Close() }
	return mw, mw, cleanup, nil
}

// baseWriters chooses the underlying writers based on printOnly and the
// configured endpoint.
func baseWriters(cfg config.Sink, printOnly bool, out io.Writer) (sink.PoseWriter, sink.HazardWriter, error) {
	if printOnly || cfg.GreptimeEndpoint == "" {
		if out == nil {
			return nil, nil, nil
		}
		w := sink.NewJSONWriter(out)
		return w, w, nil
	}
	w, err := sink.NewGreptimeDBWriter(cfg.GreptimeEndpoint, cfg.Database, cfg.PoseTable, cfg.HazardTable)
	if err != nil {
		return nil, nil, err
	}
	return w, w, nil
}
