// Package admin exposes the store view and rover commands over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"roverscope/internal/link"
	"roverscope/internal/store"
	"roverscope/internal/telemetry"
)

// ViewSource supplies the current view. *store.Store implements it.
type ViewSource interface {
	View() store.View
}

// Controller sends commands to the rover. *link.Manager implements it.
type Controller interface {
	Send(ctx context.Context, cmd telemetry.Command) error
	Stats() link.Stats
	IsConnected() bool
}

// Config sizes the drawing surfaces the handlers project onto.
type Config struct {
	WorldW, WorldH     float64
	SurfaceW, SurfaceH float64
	StaleAfter         time.Duration
	DepthWindow        int
}

// Server serves the JSON surface. ctl may be nil, for example during replay;
// command and link routes then answer 503.
type Server struct {
	views  ViewSource
	ctl    Controller
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
	router chi.Router
}

// NewServer builds the router.
func NewServer(views ViewSource, ctl Controller, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SurfaceW <= 0 || cfg.SurfaceH <= 0 {
		cfg.SurfaceW, cfg.SurfaceH = 400, 600
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 3 * time.Second
	}
	s := &Server{views: views, ctl: ctl, cfg: cfg, log: log, now: time.Now}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Get("/map", s.handleMap)
		r.Get("/overlay", s.handleOverlay)
		r.Get("/gauges", s.handleGauges)
		r.Get("/risk", s.handleRisk)
		r.Get("/frame", s.handleFrame)
		r.Get("/link", s.handleLink)
		r.Post("/commands/{name}", s.handleCommand)
	})
	s.router = r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr until ctx is cancelled. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	s.log.Info("admin: listening", "addr", addr)
	return srv.ListenAndServe()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("admin: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.ctl != nil && s.ctl.IsConnected()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connected": connected})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.views.View())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame := s.views.View().Snapshot.Frame
	if len(frame) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no frame"))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	if s.ctl == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no live link"))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Connected bool `json:"connected"`
		link.Stats
	}{s.ctl.IsConnected(), s.ctl.Stats()})
}

// surface reads ?w=&h= or falls back to the configured surface.
func (s *Server) surface(r *http.Request) (float64, float64, error) {
	w, h := s.cfg.SurfaceW, s.cfg.SurfaceH
	for _, p := range []struct {
		key string
		dst *float64
	}{{"w", &w}, {"h", &h}} {
		raw := r.URL.Query().Get(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return 0, 0, errors.New("bad surface size " + p.key + "=" + raw)
		}
		*p.dst = v
	}
	return w, h, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
