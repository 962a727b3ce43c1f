package sim

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roverscope/internal/api"
	"roverscope/internal/link"
	"roverscope/internal/telemetry"
)

func startServer(t *testing.T) (*Simulator, *httptest.Server) {
	t.Helper()
	s := NewSimulator(2, 3, 10*time.Millisecond, WithLegacyEvents())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	srv := httptest.NewServer(NewServer(s, nil).Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func TestServerStreamsTelemetryAndHandlesReset(t *testing.T) {
	s, srv := startServer(t)

	events := make(chan string, 256)
	m := link.New(link.Config{ReconnectDelay: 10 * time.Millisecond})
	defer m.Close()
	m.Subscribe(link.ListenerFuncs{Message: func(ev telemetry.Event) {
		select {
		case events <- string(ev.Kind()):
		default:
		}
	}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Connect(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	wait := func(kind telemetry.Kind) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case k := <-events:
				if k == string(kind) {
					return
				}
			case <-deadline:
				t.Fatalf("no %s event", kind)
			}
		}
	}
	wait(telemetry.KindTelemetry)

	if err := m.Send(ctx, telemetry.ResetMap{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	wait(telemetry.KindReset)

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Events()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ev := s.Events(); len(ev) != 1 || ev[0].Command != "resetMap" {
		t.Fatalf("events = %+v", ev)
	}
}

func TestServerMissionAPI(t *testing.T) {
	_, srv := startServer(t)
	c := api.NewClient(srv.Client(), srv.URL)
	ctx := context.Background()

	if _, err := c.StartMission(ctx, "traverse", 150); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.StartMission(ctx, "traverse", 150); !errors.Is(err, api.ErrRejected) {
		t.Fatalf("second start err = %v, want ErrRejected", err)
	}
	missions, err := c.Missions(ctx)
	if err != nil || len(missions) != 1 || missions[0].Task != "traverse" {
		t.Fatalf("missions = %+v err = %v", missions, err)
	}
	if _, err := c.StopMission(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := c.StopMission(ctx); !errors.Is(err, api.ErrRejected) {
		t.Fatalf("second stop err = %v, want ErrRejected", err)
	}
	report, err := c.Report(ctx, missions[0].ID)
	if err != nil || !strings.Contains(string(report), "Status:    aborted") {
		t.Fatalf("report = %q err = %v", report, err)
	}
	if _, err := c.Report(ctx, "missing"); err == nil {
		t.Fatalf("expected error for unknown report")
	}
	res, err := c.Capture(ctx)
	if err != nil || len(res.Files) != 1 {
		t.Fatalf("capture = %+v err = %v", res, err)
	}
}

func TestServerHealth(t *testing.T) {
	_, srv := startServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
