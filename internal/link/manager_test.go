package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"roverscope/internal/telemetry"
)

type wsServer struct {
	*httptest.Server
	conns   chan *websocket.Conn
	inbound chan []byte
}

// newWSServer accepts websocket clients and hands each connection to the
// test. When hangup is set the first connection is closed straight away.
func newWSServer(t *testing.T, hangup bool) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan *websocket.Conn, 8), inbound: make(chan []byte, 16)}
	var n atomic.Int32
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		if hangup && n.Add(1) == 1 {
			c.Close(websocket.StatusGoingAway, "bye")
			return
		}
		s.conns <- c
		for {
			_, b, err := c.Read(context.Background())
			if err != nil {
				return
			}
			s.inbound <- b
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) endpoint() string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no client connected")
		return nil
	}
}

func recordingListener(events chan<- string) ListenerFuncs {
	return ListenerFuncs{
		Connect:    func() { events <- "connect" },
		Disconnect: func() { events <- "disconnect" },
		Message: func(ev telemetry.Event) {
			switch e := ev.(type) {
			case telemetry.TelemetryEvent:
				events <- fmt.Sprintf("telemetry %d", *e.Snapshot.Step)
			case telemetry.ResetEvent:
				events <- "reset"
			}
		},
		Drop: func(error) { events <- "drop" },
	}
}

func expectEvents(t *testing.T, events <-chan string, want ...string) {
	t.Helper()
	for i, w := range want {
		select {
		case got := <-events:
			if got != w {
				t.Fatalf("event %d = %q, want %q", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d (%q)", i, w)
		}
	}
}

func newTestManager(t *testing.T, cfg Config, opts ...Option) *Manager {
	t.Helper()
	m := New(cfg, opts...)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManagerDispatchesInOrder(t *testing.T) {
	srv := newWSServer(t, false)
	m := newTestManager(t, Config{ReconnectDelay: 10 * time.Millisecond})
	events := make(chan string, 64)
	m.Subscribe(recordingListener(events))

	if err := m.Connect(context.Background(), srv.endpoint()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectEvents(t, events, "connect")
	if !m.IsConnected() {
		t.Fatalf("expected connected")
	}

	c := srv.accept(t)
	ctx := context.Background()
	frames := []string{
		`{"event":"telemetry","data":{"step":1}}`,
		`not json`,
		`{"event":"selfie","data":{}}`,
		`{"event":"reset_map"}`,
		`{"event":"telemetry_update","data":{"step":2,"pose":{"x":1,"y":1,"theta":0}}}`,
	}
	for _, f := range frames {
		if err := c.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}
	expectEvents(t, events, "telemetry 1", "drop", "drop", "reset", "telemetry 2")

	st := m.Stats()
	if st.Received != 5 || st.Malformed != 1 || st.Unknown != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestManagerSend(t *testing.T) {
	srv := newWSServer(t, false)
	m := newTestManager(t, Config{})

	if err := m.Send(context.Background(), telemetry.ResetMap{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send offline err = %v, want ErrNotConnected", err)
	}

	events := make(chan string, 8)
	m.Subscribe(recordingListener(events))
	if err := m.Connect(context.Background(), srv.endpoint()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectEvents(t, events, "connect")
	srv.accept(t)

	if err := m.Send(context.Background(), telemetry.StartMission{Task: "traverse", DistanceCm: 120}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case b := <-srv.inbound:
		want := `{"event":"startMission","data":{"task":"traverse","distanceCm":120}}`
		if got := string(bytes.TrimSpace(b)); got != want {
			t.Fatalf("server got %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received command")
	}
}

func TestManagerSecondConnect(t *testing.T) {
	srv := newWSServer(t, false)
	m := newTestManager(t, Config{})
	if err := m.Connect(context.Background(), srv.endpoint()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := m.Connect(context.Background(), srv.endpoint()); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Connect err = %v, want ErrAlreadyConnected", err)
	}
}

func TestManagerReconnects(t *testing.T) {
	srv := newWSServer(t, true)
	m := newTestManager(t, Config{ReconnectDelay: 10 * time.Millisecond})
	events := make(chan string, 16)
	m.Subscribe(recordingListener(events))

	if err := m.Connect(context.Background(), srv.endpoint()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectEvents(t, events, "connect", "disconnect", "connect")
	if got := m.Stats().Reconnects; got != 1 {
		t.Fatalf("reconnects = %d, want 1", got)
	}
}

func TestManagerGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	m := newTestManager(t, Config{ReconnectAttempts: 2, ReconnectDelay: time.Millisecond})
	if err := m.Connect(context.Background(), endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		running := m.running
		m.mu.Unlock()
		if !running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("manager still retrying")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if m.IsConnected() {
		t.Fatalf("expected disconnected after giving up")
	}
}

func TestManagerCloseStopsCallbacks(t *testing.T) {
	srv := newWSServer(t, false)
	m := New(Config{})
	var after atomic.Bool
	var closed atomic.Bool
	events := make(chan string, 64)
	m.Subscribe(ListenerFuncs{
		Connect: func() { events <- "connect" },
		Message: func(telemetry.Event) {
			if closed.Load() {
				after.Store(true)
			}
		},
	})
	if err := m.Connect(context.Background(), srv.endpoint()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectEvents(t, events, "connect")
	c := srv.accept(t)
	for i := 0; i < 20; i++ {
		c.Write(context.Background(), websocket.MessageText, []byte(`{"event":"reset"}`))
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	closed.Store(true)
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if after.Load() {
		t.Fatalf("callback fired after Close returned")
	}
	if m.IsConnected() {
		t.Fatalf("expected disconnected after Close")
	}
	if err := m.Connect(context.Background(), srv.endpoint()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Connect after Close err = %v, want ErrClosed", err)
	}
	if err := m.Send(context.Background(), telemetry.AbortMission{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close err = %v, want ErrClosed", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	srv := newWSServer(t, false)
	m := newTestManager(t, Config{})
	first := make(chan string, 16)
	second := make(chan string, 16)
	unsub := m.Subscribe(recordingListener(first))
	m.Subscribe(recordingListener(second))
	unsub()
	unsub()

	if err := m.Connect(context.Background(), srv.endpoint()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectEvents(t, second, "connect")
	select {
	case ev := <-first:
		t.Fatalf("unsubscribed listener got %q", ev)
	default:
	}
}

func TestUnsubscribeDuringDispatch(t *testing.T) {
	srv := newWSServer(t, false)
	m := newTestManager(t, Config{})
	entered := make(chan struct{})
	release := make(chan struct{})
	first := make(chan string, 16)
	second := make(chan string, 16)
	m.Subscribe(ListenerFuncs{Message: func(ev telemetry.Event) {
		if _, ok := ev.(telemetry.ResetEvent); ok {
			close(entered)
			<-release
		}
		first <- "message"
	}})
	unsub := m.Subscribe(recordingListener(second))

	if err := m.Connect(context.Background(), srv.endpoint()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectEvents(t, second, "connect")
	c := srv.accept(t)
	ctx := context.Background()
	if err := c.Write(ctx, websocket.MessageText, []byte(`{"event":"reset_map"}`)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("first listener never saw the reset")
	}

	// the reset is already being fanned out when the second listener leaves
	unsub()
	close(release)
	if err := c.Write(ctx, websocket.MessageText, []byte(`{"event":"telemetry","data":{"step":1}}`)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	expectEvents(t, first, "message", "message")
	select {
	case ev := <-second:
		t.Fatalf("listener called after unsubscribe returned: %q", ev)
	default:
	}
}

func TestUnsubscribeWaitsForRunningCallback(t *testing.T) {
	srv := newWSServer(t, false)
	m := newTestManager(t, Config{})
	entered := make(chan struct{})
	release := make(chan struct{})
	var running atomic.Bool
	unsub := m.Subscribe(ListenerFuncs{Message: func(telemetry.Event) {
		running.Store(true)
		close(entered)
		<-release
		running.Store(false)
	}})

	if err := m.Connect(context.Background(), srv.endpoint()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c := srv.accept(t)
	if err := c.Write(context.Background(), websocket.MessageText, []byte(`{"event":"reset_map"}`)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener never called")
	}

	done := make(chan struct{})
	go func() {
		unsub()
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("unsubscribe returned while the callback was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("unsubscribe never returned")
	}
	if running.Load() {
		t.Fatalf("callback still running after unsubscribe")
	}
}
