package sim

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"roverscope/internal/api"
	"roverscope/internal/telemetry"
)

// Server exposes a Simulator the way the rover server does: telemetry and
// commands on /ws, missions and captures under /api.
type Server struct {
	sim    *Simulator
	log    *slog.Logger
	router chi.Router
}

// NewServer builds the router.
func NewServer(sim *Simulator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{sim: sim, log: log}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": sim.Mode()})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Post("/capture", s.handleCapture)
		r.Get("/missions", s.handleMissions)
		r.Get("/missions/{id}/report", s.handleReport)
		r.Post("/mission/start", s.handleStart)
		r.Post("/mission/stop", s.handleStop)
	})
	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	s.log.Info("sim: listening", "addr", addr)
	return srv.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("sim: accept failed", "error", err)
		return
	}
	defer c.CloseNow()
	log := s.log.With("remote", r.RemoteAddr)
	log.Info("sim: client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	frames, unsubscribe := s.sim.Subscribe()
	defer unsubscribe()

	go func() {
		defer cancel()
		for {
			var env telemetry.Envelope
			if err := wsjson.Read(ctx, c, &env); err != nil {
				return
			}
			replies, err := s.sim.Apply(env)
			if err != nil {
				// commands are fire-and-forget; the client never hears about failures
				log.Warn("sim: command rejected", "event", env.Event, "error", err)
				continue
			}
			log.Info("sim: command applied", "event", env.Event)
			for _, reply := range replies {
				if err := c.Write(ctx, websocket.MessageText, reply); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := c.Write(ctx, websocket.MessageText, frame); err != nil {
				log.Info("sim: client gone", "error", err)
				return
			}
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Events())
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	name := s.sim.Capture()
	writeJSON(w, http.StatusOK, api.CaptureResult{
		Result: api.Result{Success: true, Message: "captured " + name},
		Files:  []string{name},
	})
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.MissionList{Result: api.Result{Success: true}, Missions: s.sim.Missions()})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.sim.Report(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "mission not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(report)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.Result{Message: "bad request body"})
		return
	}
	id, err := s.sim.StartMission(req.Task, req.DistanceCm)
	switch {
	case errors.Is(err, ErrMissionActive):
		writeJSON(w, http.StatusConflict, api.Result{Message: "mission already running"})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, api.Result{Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, api.Result{Success: true, Message: "mission " + id + " started"})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.AbortMission(); err != nil {
		writeJSON(w, http.StatusConflict, api.Result{Message: "no mission running"})
		return
	}
	writeJSON(w, http.StatusOK, api.Result{Success: true, Message: "mission stopped"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
