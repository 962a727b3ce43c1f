package link

import "roverscope/internal/telemetry"

// Listener receives channel lifecycle and inbound events.
type Listener interface {
	OnConnect()
	OnDisconnect()
	OnMessage(ev telemetry.Event)
}

// DropListener is implemented by listeners that want to hear about frames
// the manager discarded. err wraps telemetry.ErrMalformed or
// telemetry.ErrUnknownEvent.
type DropListener interface {
	OnDrop(err error)
}

// ListenerFuncs adapts plain functions to Listener and DropListener. Nil
// fields are skipped.
type ListenerFuncs struct {
	Connect    func()
	Disconnect func()
	Message    func(telemetry.Event)
	Drop       func(error)
}

func (f ListenerFuncs) OnConnect() {
	if f.Connect != nil {
		f.Connect()
	}
}

func (f ListenerFuncs) OnDisconnect() {
	if f.Disconnect != nil {
		f.Disconnect()
	}
}

func (f ListenerFuncs) OnMessage(ev telemetry.Event) {
	if f.Message != nil {
		f.Message(ev)
	}
}

func (f ListenerFuncs) OnDrop(err error) {
	if f.Drop != nil {
		f.Drop(err)
	}
}
