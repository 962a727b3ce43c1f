// Package dashboard renders the store view as a bubbletea terminal UI.
package dashboard

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"roverscope/internal/store"
	"roverscope/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// viewMsg carries a published store view.
type viewMsg struct{ store.View }

// logMsg carries an event line for the log pane.
type logMsg struct{ line string }

// adminMsg reports where the HTTP surface listens; empty means off.
type adminMsg struct{ addr string }

// commandMsg reports the outcome of a command sent from a key binding.
type commandMsg struct {
	name string
	err  error
}

// Options configures the dashboard.
type Options struct {
	// WorldW and WorldH are the world size in metres.
	WorldW, WorldH float64
	// StaleAfter marks the view stale when no packet arrived for this long.
	StaleAfter time.Duration
	// Commander sends commands to the rover. Nil makes the dashboard
	// read-only.
	Commander func(telemetry.Command) error
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.WorldW <= 0 {
		o.WorldW = 2
	}
	if o.WorldH <= 0 {
		o.WorldH = 3
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 3 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Dashboard drives a bubbletea program from store views.
type Dashboard struct {
	program teaProgram
	done    chan struct{}
	err     error
}

// New starts the terminal UI on the alternate screen.
func New(opts Options) *Dashboard {
	d := &Dashboard{done: make(chan struct{})}
	p := tea.NewProgram(newModel(opts), tea.WithAltScreen())
	d.program = p
	go func() {
		_, d.err = p.Run()
		close(d.done)
	}()
	return d
}

// Observe forwards a view to the UI. It matches store.Observer.
func (d *Dashboard) Observe(v store.View) {
	d.program.Send(viewMsg{v})
}

// Log appends a line to the event pane.
func (d *Dashboard) Log(line string) {
	d.program.Send(logMsg{line: line})
}

// SetAdminStatus shows the HTTP surface address in the footer.
func (d *Dashboard) SetAdminStatus(addr string) {
	d.program.Send(adminMsg{addr: addr})
}

// Done is closed when the user quits the UI.
func (d *Dashboard) Done() <-chan struct{} { return d.done }

// Close shuts the UI down and waits for the terminal to be restored.
func (d *Dashboard) Close() error {
	if d.program != nil {
		d.program.Send(tea.Quit())
	}
	if d.done != nil {
		<-d.done
	}
	return d.err
}
