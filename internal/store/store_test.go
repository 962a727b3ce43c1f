package store

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"

	"roverscope/internal/link"
	"roverscope/internal/telemetry"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func packet(step int, pose *telemetry.Pose, distances ...float64) telemetry.Event {
	s := telemetry.Snapshot{Step: &step, Pose: pose}
	for _, d := range distances {
		s.Perception.Live = append(s.Perception.Live, telemetry.LiveDetection{Distance: d})
	}
	return telemetry.TelemetryEvent{Snapshot: s}
}

func TestHistoriesStayBounded(t *testing.T) {
	s := New()
	for i := 0; i < 250; i++ {
		s.Apply(packet(i, &telemetry.Pose{X: float64(i)}, 1))
		v := s.View()
		if len(v.PositionHistory) > DefaultPositionCap || len(v.DepthHistory) > DefaultDepthCap {
			t.Fatalf("packet %d: histories %d/%d exceed caps", i, len(v.PositionHistory), len(v.DepthHistory))
		}
	}
	v := s.View()
	if len(v.PositionHistory) != 100 || len(v.DepthHistory) != 50 {
		t.Fatalf("histories = %d/%d, want 100/50", len(v.PositionHistory), len(v.DepthHistory))
	}
	if v.PositionHistory[0].X != 150 || v.PositionHistory[99].X != 249 {
		t.Fatalf("position window = %v..%v, want 150..249", v.PositionHistory[0].X, v.PositionHistory[99].X)
	}
	if v.Packets != 250 {
		t.Fatalf("packets = %d", v.Packets)
	}
}

func TestDepthHistoryKeepsLastFifty(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	for i := 1; i <= 60; i++ {
		s.Apply(packet(i, nil, 0.05*float64(i)))
		clock.Advance(100 * time.Millisecond)
	}
	var got []float64
	for _, d := range s.View().DepthHistory {
		got = append(got, d.Mean)
	}
	var want []float64
	for i := 11; i <= 60; i++ {
		want = append(want, 0.05*float64(i))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("depth history mismatch (-want +got):\n%s", diff)
	}
}

func TestDepthSampleIsMeanOfLiveDistances(t *testing.T) {
	s := New()
	s.Apply(packet(1, nil, 1, 2, 3))
	s.Apply(packet(2, nil))
	v := s.View()
	if len(v.DepthHistory) != 1 || v.DepthHistory[0].Mean != 2 {
		t.Fatalf("depth history = %+v, want one sample of 2", v.DepthHistory)
	}
	if *v.Snapshot.Step != 2 {
		t.Fatalf("snapshot step = %d, want 2", *v.Snapshot.Step)
	}
}

func TestPositionHistoryPreservesArrivalOrder(t *testing.T) {
	s := New()
	// steps arrive out of order and are trusted as-is
	steps := []int{3, 1, 2, 5, 4}
	var want []telemetry.Pose
	for _, st := range steps {
		p := telemetry.Pose{X: float64(st), Y: float64(st) / 2}
		want = append(want, p)
		s.Apply(packet(st, &p))
	}
	if diff := cmp.Diff(want, s.View().PositionHistory); diff != "" {
		t.Fatalf("positions mismatch (-want +got):\n%s", diff)
	}
}

func TestResetClearsHistoriesOnly(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		s.Apply(packet(i, &telemetry.Pose{X: 1}, 0.5))
	}
	s.Apply(telemetry.ResetEvent{})
	v := s.View()
	if len(v.PositionHistory) != 0 || len(v.DepthHistory) != 0 {
		t.Fatalf("histories after reset = %d/%d", len(v.PositionHistory), len(v.DepthHistory))
	}
	if !v.HasSnapshot || *v.Snapshot.Step != 9 {
		t.Fatalf("snapshot lost on reset: %+v", v.Snapshot)
	}
	s.Apply(telemetry.ResetEvent{})
	if v := s.View(); len(v.PositionHistory) != 0 {
		t.Fatalf("second reset left %d positions", len(v.PositionHistory))
	}
}

func TestDisconnectResetReconnect(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var connected []bool
	cancel := s.Observe(func(v View) {
		mu.Lock()
		connected = append(connected, v.Connected)
		mu.Unlock()
	})
	defer cancel()

	s.SetConnected(true)
	s.Apply(packet(1, &telemetry.Pose{X: 1}, 1))
	s.SetConnected(false)
	s.Apply(telemetry.ResetEvent{})
	s.SetConnected(true)

	v := s.View()
	if !v.Connected {
		t.Fatalf("expected connected")
	}
	if len(v.PositionHistory) != 0 || len(v.DepthHistory) != 0 {
		t.Fatalf("histories repopulated after reconnect")
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]bool{true, true, false, false, true}, connected); diff != "" {
		t.Fatalf("connectivity sequence (-want +got):\n%s", diff)
	}
}

func TestMissionClock(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	if got := s.MissionClock(); got != "T+00:00:00" {
		t.Fatalf("clock = %s", got)
	}
	clock.Advance(3725*time.Second + 900*time.Millisecond)
	v := s.View()
	if v.MissionTimeSeconds != 3725 {
		t.Fatalf("mission seconds = %d, want 3725", v.MissionTimeSeconds)
	}
	if got := v.MissionClock(); got != "T+01:02:05" {
		t.Fatalf("clock = %s, want T+01:02:05", got)
	}
	s.SetConnected(false)
	s.SetConnected(true)
	if got := s.View().MissionTimeSeconds; got != 3725 {
		t.Fatalf("clock reset across reconnect: %d", got)
	}
	if got := FormatMissionClock(100 * 3600); got != "T+100:00:00" {
		t.Fatalf("long clock = %s", got)
	}
}

func TestTickPublishesClock(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	var seen []int64
	s.Observe(func(v View) { seen = append(seen, v.MissionTimeSeconds) })
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		s.tick()
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, seen); diff != "" {
		t.Fatalf("ticks (-want +got):\n%s", diff)
	}
}

func TestObserveCancel(t *testing.T) {
	s := New()
	n := 0
	cancel := s.Observe(func(View) { n++ })
	s.SetConnected(true)
	cancel()
	cancel()
	s.SetConnected(false)
	if n != 1 {
		t.Fatalf("observer called %d times, want 1", n)
	}
}

func TestStale(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	if !s.View().Stale(clock.Now(), 3*time.Second) {
		t.Fatalf("empty view should be stale")
	}
	ev := packet(1, nil)
	te := ev.(telemetry.TelemetryEvent)
	te.Snapshot.ReceivedAt = clock.Now()
	s.Apply(te)
	clock.Advance(2 * time.Second)
	if s.View().Stale(clock.Now(), 3*time.Second) {
		t.Fatalf("fresh view reported stale")
	}
	clock.Advance(2 * time.Second)
	if !s.View().Stale(clock.Now(), 3*time.Second) {
		t.Fatalf("old view not stale")
	}
}

func TestRecordDrop(t *testing.T) {
	s := New()
	s.RecordDrop(fmt.Errorf("wrap: %w", telemetry.ErrMalformed))
	s.RecordDrop(telemetry.ErrUnknownEvent)
	if got := s.View().Malformed; got != 1 {
		t.Fatalf("malformed = %d, want 1", got)
	}
}

func TestAttachFollowsLink(t *testing.T) {
	conns := make(chan *websocket.Conn, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
		c.Read(context.Background())
	}))
	defer srv.Close()

	m := link.New(link.Config{ReconnectDelay: 10 * time.Millisecond})
	defer m.Close()
	s := New(WithTickInterval(5 * time.Millisecond))
	views := make(chan View, 256)
	s.Observe(func(v View) {
		select {
		case views <- v:
		default:
		}
	})
	detach := s.Attach(context.Background(), m)
	defer detach()

	if err := m.Connect(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c := <-conns
	frames := []string{
		`{"event":"telemetry","data":{"step":1,"pose":{"x":0.5,"y":1,"theta":0},"perception":{"live":[{"box":[0,0,1,1],"distance":1.5}]}}}`,
		`{"event":"telemetry","data":{"frame":"***"}}`,
		`{"event":"telemetry","data":{"step":2,"pose":{"x":0.6,"y":1,"theta":0}}}`,
	}
	for _, f := range frames {
		c.Write(context.Background(), websocket.MessageText, []byte(f))
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if v.Packets == 2 && v.Malformed == 1 {
				if !v.Connected || len(v.PositionHistory) != 2 || len(v.DepthHistory) != 1 {
					t.Fatalf("unexpected view %+v", v)
				}
				detach()
				return
			}
		case <-deadline:
			t.Fatalf("store never caught up: %+v", s.View())
		}
	}
}

func TestDetachStopsUpdates(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
		c.Read(context.Background())
	}))
	defer srv.Close()

	m := link.New(link.Config{})
	defer m.Close()
	s := New()
	detach := s.Attach(context.Background(), m)
	// subscribed after the store, so it hears each frame once the store has
	seen := make(chan int, 16)
	m.Subscribe(link.ListenerFuncs{Message: func(ev telemetry.Event) {
		if te, ok := ev.(telemetry.TelemetryEvent); ok && te.Snapshot.Step != nil {
			seen <- *te.Snapshot.Step
		}
	}})

	if err := m.Connect(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c := <-conns
	write := func(step int) {
		t.Helper()
		frame := fmt.Sprintf(`{"event":"telemetry","data":{"step":%d,"pose":{"x":0.5,"y":1,"theta":0}}}`, step)
		if err := c.Write(context.Background(), websocket.MessageText, []byte(frame)); err != nil {
			t.Fatalf("server write: %v", err)
		}
		select {
		case got := <-seen:
			if got != step {
				t.Fatalf("step = %d, want %d", got, step)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("step %d never dispatched", step)
		}
	}

	write(1)
	detach()
	before := s.View()
	write(2)
	write(3)
	after := s.View()
	if after.Packets != before.Packets || len(after.PositionHistory) != len(before.PositionHistory) {
		t.Fatalf("store changed after detach: packets %d -> %d", before.Packets, after.Packets)
	}
	if before.Packets != 1 {
		t.Fatalf("packets before detach = %d, want 1", before.Packets)
	}
}

func TestViewSharesNoMemory(t *testing.T) {
	s := New(WithClock(newFakeClock().Now))
	depth := 0.4
	ev := packet(1, &telemetry.Pose{X: 1, Y: 1}, 2).(telemetry.TelemetryEvent)
	ev.Snapshot.Frame = []byte{0xff, 0xd8}
	ev.Snapshot.Perception.Map = []telemetry.MapDetection{{ID: "c1", X: 1, Y: 2, Radius: 0.2, Depth: &depth}}
	ev.Snapshot.Perception.CapturedFiles = []string{"a.jpg"}
	ev.Snapshot.Mission = &telemetry.MissionStatus{Active: true, Task: "traverse"}
	s.Apply(ev)
	want := s.View()

	v := s.View()
	v.Snapshot.Frame[0] = 0
	v.Snapshot.Pose.X = 9
	*v.Snapshot.Step = 9
	v.Snapshot.Perception.Live[0].Distance = 9
	v.Snapshot.Perception.Map[0].ID = "changed"
	*v.Snapshot.Perception.Map[0].Depth = 9
	v.Snapshot.Perception.CapturedFiles[0] = "changed.jpg"
	v.Snapshot.Mission.Task = "changed"
	v.PositionHistory[0].X = 9

	if diff := cmp.Diff(want, s.View()); diff != "" {
		t.Fatalf("store changed through a view (-want +got):\n%s", diff)
	}
}
