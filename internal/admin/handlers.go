package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roverscope/internal/geometry"
	"roverscope/internal/link"
	"roverscope/internal/risk"
	"roverscope/internal/stats"
	"roverscope/internal/telemetry"
)

type surfaceSize struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type mapHazard struct {
	geometry.HazardMarker
	Tier risk.Tier `json:"tier"`
}

type mapResponse struct {
	Surface surfaceSize             `json:"surface"`
	Rover   *geometry.Marker        `json:"rover,omitempty"`
	Trail   []geometry.TrailSegment `json:"trail"`
	Hazards []mapHazard             `json:"hazards"`
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	sw, sh, err := s.surface(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v := s.views.View()
	proj := geometry.NewProjector(s.cfg.WorldW, s.cfg.WorldH, sw, sh)
	resp := mapResponse{
		Surface: surfaceSize{sw, sh},
		Trail:   proj.Trail(v.PositionHistory),
		Hazards: []mapHazard{},
	}
	pose := v.Snapshot.Pose
	if pose != nil {
		m := proj.Marker(*pose)
		resp.Rover = &m
	}
	hazards := v.Snapshot.Perception.Map
	var assessed []risk.Assessment
	if pose != nil {
		assessed = risk.AssessMap(*pose, hazards)
	}
	for i, hm := range proj.Hazards(hazards) {
		h := mapHazard{HazardMarker: hm}
		if assessed != nil {
			h.Tier = assessed[i].Tier
		}
		resp.Hazards = append(resp.Hazards, h)
	}
	writeJSON(w, http.StatusOK, resp)
}

type overlayBox struct {
	geometry.Overlay
	Label    string     `json:"label,omitempty"`
	Distance float64    `json:"distance"`
	Tier     risk.Tier  `json:"tier"`
	Pixels   [4]float64 `json:"pixels"`
}

type overlayResponse struct {
	Resolution telemetry.Resolution `json:"resolution"`
	Surface    surfaceSize          `json:"surface"`
	Boxes      []overlayBox         `json:"boxes"`
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	sw, sh, err := s.surface(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p := s.views.View().Snapshot.Perception
	res := p.Resolution
	if !res.Known() {
		res = telemetry.DefaultResolution
	}
	resp := overlayResponse{Resolution: res, Surface: surfaceSize{sw, sh}, Boxes: []overlayBox{}}
	for i, a := range risk.AssessLive(p.Live) {
		o := geometry.OverlayBox(p.Live[i].Box, res)
		x, y, bw, bh := o.Pixels(sw, sh)
		resp.Boxes = append(resp.Boxes, overlayBox{
			Overlay:  o,
			Label:    a.Label,
			Distance: a.Distance,
			Tier:     a.Tier,
			Pixels:   [4]float64{x, y, bw, bh},
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type gauge struct {
	Value float64 `json:"value"`
	Fill  float64 `json:"fill"`
}

type gaugesResponse struct {
	Throttle  gauge                    `json:"throttle"`
	Steering  gauge                    `json:"steering"`
	Depth     stats.Summary            `json:"depth"`
	Sparkline string                   `json:"sparkline"`
	Mission   *telemetry.MissionStatus `json:"mission,omitempty"`
	Clock     string                   `json:"clock"`
	Connected bool                     `json:"connected"`
	Stale     bool                     `json:"stale"`
}

func (s *Server) handleGauges(w http.ResponseWriter, r *http.Request) {
	v := s.views.View()
	d := v.Snapshot.Drive
	writeJSON(w, http.StatusOK, gaugesResponse{
		Throttle:  gauge{d.Throttle, stats.FillPercent(d.Throttle, -1, 1)},
		Steering:  gauge{d.Steering, stats.FillPercent(d.Steering, -1, 1)},
		Depth:     stats.Summarize(v.DepthHistory, s.cfg.DepthWindow),
		Sparkline: stats.SparklineString(v.DepthHistory, 50),
		Mission:   v.Snapshot.Mission,
		Clock:     v.MissionClock(),
		Connected: v.Connected,
		Stale:     v.Stale(s.now(), s.cfg.StaleAfter),
	})
}

type riskResponse struct {
	Worst risk.Tier         `json:"worst"`
	Live  []risk.Assessment `json:"live"`
	Map   []risk.Assessment `json:"map"`
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	snap := s.views.View().Snapshot
	resp := riskResponse{Live: risk.AssessLive(snap.Perception.Live), Map: []risk.Assessment{}}
	if snap.Pose != nil {
		resp.Map = risk.AssessMap(*snap.Pose, snap.Perception.Map)
	}
	resp.Worst = max(risk.Worst(resp.Live), risk.Worst(resp.Map))
	writeJSON(w, http.StatusOK, resp)
}

var errUnknownCommand = errors.New("unknown command")

// decodeCommand builds the named command from an optional JSON body.
func decodeCommand(name string, body []byte) (telemetry.Command, error) {
	var cmd telemetry.Command
	switch name {
	case telemetry.SetChassisMode{}.Name():
		var c telemetry.SetChassisMode
		if err := unmarshalBody(body, &c); err != nil {
			return nil, err
		}
		switch c.Mode {
		case telemetry.ChassisManual, telemetry.ChassisAutonomous, telemetry.ChassisStop:
		default:
			return nil, fmt.Errorf("bad chassis mode %q", c.Mode)
		}
		cmd = c
	case telemetry.StartMission{}.Name():
		var c telemetry.StartMission
		if err := unmarshalBody(body, &c); err != nil {
			return nil, err
		}
		if c.Task == "" || c.DistanceCm <= 0 {
			return nil, errors.New("task and a positive distanceCm are required")
		}
		cmd = c
	case telemetry.ResetMap{}.Name():
		cmd = telemetry.ResetMap{}
	case telemetry.AbortMission{}.Name():
		cmd = telemetry.AbortMission{}
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, name)
	}
	return cmd, nil
}

func unmarshalBody(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("request body required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("bad request body: %w", err)
	}
	return nil
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cmd, err := decodeCommand(name, body)
	if errors.Is(err, errUnknownCommand) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.ctl == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no live link"))
		return
	}
	if err := s.ctl.Send(r.Context(), cmd); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, link.ErrNotConnected) || errors.Is(err, link.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	s.log.Info("admin: command sent", "command", name)
	writeJSON(w, http.StatusAccepted, map[string]string{"sent": name})
}

