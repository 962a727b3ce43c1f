// Package link owns the duplex telemetry channel to the rover server.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"roverscope/internal/telemetry"
)

var (
	ErrAlreadyConnected = errors.New("link: already connected")
	ErrNotConnected     = errors.New("link: not connected")
	ErrClosed           = errors.New("link: manager closed")
)

// Config controls reconnection and framing.
type Config struct {
	ReconnectAttempts int           // consecutive failed dials before giving up
	ReconnectDelay    time.Duration // fixed wait between dials
	ReadLimit         int64         // maximum inbound frame size in bytes
}

// DefaultConfig returns the stock reconnection policy: 5 attempts, 1s apart.
func DefaultConfig() Config {
	return Config{
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		ReadLimit:         8 << 20,
	}
}

// Stats counts inbound frames since the manager was created.
type Stats struct {
	Received   uint64 `json:"received"`
	Malformed  uint64 `json:"malformed"`
	Unknown    uint64 `json:"unknown"`
	Reconnects uint64 `json:"reconnects"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithCapture tees every accepted inbound envelope to w as JSONL.
func WithCapture(w io.Writer) Option {
	return func(m *Manager) { m.capture = newCaptureWriter(w) }
}

// WithClock overrides the receive timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type subscription struct {
	id      uint64
	l       Listener
	removed bool
}

// Manager maintains at most one websocket to the rover server, decodes
// inbound envelopes and fans them out to listeners. All listener callbacks
// run on a single dispatch goroutine in arrival order; a callback must not
// call Close or unsubscribe its own listener.
type Manager struct {
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
	capture *captureWriter

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	closed  bool
	subs    []*subscription
	nextID  uint64
	active  *subscription
	idle    *sync.Cond

	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc
	queue           chan func()
	dispatchOnce    sync.Once
	wg              sync.WaitGroup

	connected  atomic.Bool
	received   atomic.Uint64
	malformed  atomic.Uint64
	unknown    atomic.Uint64
	reconnects atomic.Uint64
}

// New creates a Manager. Zero config fields fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = def.ReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:             cfg,
		log:             slog.Default(),
		now:             time.Now,
		lifecycleCtx:    ctx,
		lifecycleCancel: cancel,
		queue:           make(chan func(), 256),
	}
	m.idle = sync.NewCond(&m.mu)
	for _, o := range opts {
		o(m)
	}
	return m
}

// Connect starts the persistent channel to endpoint (ws:// or wss://). It
// returns immediately; connectivity is reported through listeners and
// IsConnected. Cancelling ctx tears the channel down like Close does, minus
// listener removal.
func (m *Manager) Connect(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.running {
		return ErrAlreadyConnected
	}
	m.running = true

	m.dispatchOnce.Do(func() {
		m.wg.Add(1)
		go m.dispatch()
	})

	runCtx, cancel := context.WithCancel(m.lifecycleCtx)
	stop := context.AfterFunc(ctx, cancel)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer stop()
		defer cancel()
		m.run(runCtx, endpoint)
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()
	return nil
}

// IsConnected reports whether a channel is currently open.
func (m *Manager) IsConnected() bool { return m.connected.Load() }

// Stats returns the frame counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Received:   m.received.Load(),
		Malformed:  m.malformed.Load(),
		Unknown:    m.unknown.Load(),
		Reconnects: m.reconnects.Load(),
	}
}

// Subscribe registers l and returns a function that removes it. unsubscribe
// waits for a callback of l that is already running; once it returns, l is
// never called again.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	sub := &subscription{id: m.nextID, l: l}
	m.nextID++
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			sub.removed = true
			for i, s := range m.subs {
				if s.id == sub.id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					break
				}
			}
			for m.active == sub {
				m.idle.Wait()
			}
		})
	}
}

// Send writes a command to the server. It never queues: when no channel is
// open it returns ErrNotConnected.
func (m *Manager) Send(ctx context.Context, cmd telemetry.Command) error {
	env, err := telemetry.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	m.mu.Lock()
	conn := m.conn
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	if err := wsjson.Write(ctx, conn, env); err != nil {
		return fmt.Errorf("link: send %s: %w", cmd.Name(), err)
	}
	return nil
}

// Close tears the channel down, drops every listener and waits until no
// callback can fire. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// cancelling the read context closes the socket
	m.lifecycleCancel()
	m.wg.Wait()

	m.mu.Lock()
	m.subs = nil
	m.mu.Unlock()
	if m.capture != nil {
		return m.capture.err()
	}
	return nil
}

func (m *Manager) run(ctx context.Context, endpoint string) {
	log := m.log.With("endpoint", endpoint)
	failures := 0
	for {
		conn, _, err := websocket.Dial(ctx, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures > m.cfg.ReconnectAttempts {
				log.Error("link: giving up", "attempts", m.cfg.ReconnectAttempts, "error", err)
				return
			}
			log.Warn("link: dial failed", "attempt", failures, "max_attempts", m.cfg.ReconnectAttempts, "delay", m.cfg.ReconnectDelay, "error", err)
			if !m.wait(ctx) {
				return
			}
			continue
		}
		failures = 0
		conn.SetReadLimit(m.cfg.ReadLimit)

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.connected.Store(true)
		log.Info("link: connected")
		m.enqueue(m.lifecycleCtx, m.fanConnect)

		err = m.read(ctx, conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		m.connected.Store(false)
		conn.CloseNow()
		m.enqueue(m.lifecycleCtx, m.fanDisconnect)
		if ctx.Err() != nil {
			return
		}
		m.reconnects.Add(1)
		log.Warn("link: disconnected", "error", err)
		if !m.wait(ctx) {
			return
		}
	}
}

// wait sleeps for the reconnect delay and reports false when ctx ended first.
func (m *Manager) wait(ctx context.Context) bool {
	t := time.NewTimer(m.cfg.ReconnectDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) read(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		at := m.now()
		m.received.Add(1)
		ev, derr := telemetry.DecodeEnvelope(data, at)
		if derr != nil {
			if errors.Is(derr, telemetry.ErrUnknownEvent) {
				m.unknown.Add(1)
			} else {
				m.malformed.Add(1)
			}
			m.log.Debug("link: dropped frame", "error", derr)
			m.enqueue(ctx, func() { m.fanDrop(derr) })
			continue
		}
		if m.capture != nil {
			m.capture.record(at, data)
		}
		m.enqueue(ctx, func() { m.fanMessage(ev) })
	}
}

func (m *Manager) enqueue(ctx context.Context, fn func()) {
	select {
	case m.queue <- fn:
	case <-ctx.Done():
	}
}

func (m *Manager) dispatch() {
	defer m.wg.Done()
	for {
		select {
		case fn := <-m.queue:
			if m.lifecycleCtx.Err() != nil {
				return
			}
			fn()
		case <-m.lifecycleCtx.Done():
			return
		}
	}
}

func (m *Manager) listeners() []*subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*subscription(nil), m.subs...)
}

// each calls fn for every listener still subscribed at the moment its turn
// comes, marking it active so unsubscribe can wait for it.
func (m *Manager) each(fn func(Listener)) {
	for _, s := range m.listeners() {
		m.mu.Lock()
		if s.removed {
			m.mu.Unlock()
			continue
		}
		m.active = s
		m.mu.Unlock()

		fn(s.l)

		m.mu.Lock()
		m.active = nil
		m.idle.Broadcast()
		m.mu.Unlock()
	}
}

func (m *Manager) fanConnect() {
	m.each(func(l Listener) { l.OnConnect() })
}

func (m *Manager) fanDisconnect() {
	m.each(func(l Listener) { l.OnDisconnect() })
}

func (m *Manager) fanMessage(ev telemetry.Event) {
	m.each(func(l Listener) { l.OnMessage(ev) })
}

func (m *Manager) fanDrop(err error) {
	m.each(func(l Listener) {
		if d, ok := l.(DropListener); ok {
			d.OnDrop(err)
		}
	})
}
