package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"files":["cap_001.jpg"]}`))
	})
	mux.HandleFunc("GET /api/missions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"missions":[{"id":"m1","task":"traverse","status":"done","startedAt":"2026-01-02T03:04:05Z"}]}`))
	})
	mux.HandleFunc("GET /api/missions/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "m 1" {
			http.Error(w, "no such mission", http.StatusNotFound)
			return
		}
		w.Write([]byte("<h1>report</h1>"))
	})
	mux.HandleFunc("POST /api/mission/start", func(w http.ResponseWriter, r *http.Request) {
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DistanceCm <= 0 {
			w.Write([]byte(`{"success":false,"message":"distance required"}`))
			return
		}
		w.Write([]byte(`{"success":true,"message":"started ` + req.Task + `"}`))
	})
	mux.HandleFunc("POST /api/mission/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCapture(t *testing.T) {
	c := NewClient(nil, newTestServer(t).URL)
	res, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(res.Files) != 1 || res.Files[0] != "cap_001.jpg" {
		t.Fatalf("files = %v", res.Files)
	}
}

func TestMissions(t *testing.T) {
	c := NewClient(nil, newTestServer(t).URL)
	ms, err := c.Missions(context.Background())
	if err != nil {
		t.Fatalf("Missions: %v", err)
	}
	if len(ms) != 1 || ms[0].ID != "m1" || ms[0].StartedAt.Year() != 2026 {
		t.Fatalf("missions = %+v", ms)
	}
}

func TestReport(t *testing.T) {
	c := NewClient(nil, newTestServer(t).URL)
	body, err := c.Report(context.Background(), "m 1")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if string(body) != "<h1>report</h1>" {
		t.Fatalf("body = %q", body)
	}
	if _, err := c.Report(context.Background(), "other"); err == nil {
		t.Fatalf("expected error for missing report")
	}
}

func TestStartMission(t *testing.T) {
	c := NewClient(nil, newTestServer(t).URL)
	res, err := c.StartMission(context.Background(), "traverse", 150)
	if err != nil {
		t.Fatalf("StartMission: %v", err)
	}
	if res.Message != "started traverse" {
		t.Fatalf("message = %q", res.Message)
	}
	_, err = c.StartMission(context.Background(), "traverse", 0)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestStopMissionServerError(t *testing.T) {
	c := NewClient(nil, newTestServer(t).URL)
	if _, err := c.StopMission(context.Background()); err == nil || errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want transport/status error", err)
	}
}
