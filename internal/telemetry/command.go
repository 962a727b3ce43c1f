package telemetry

import (
	"encoding/json"
	"fmt"
)

// Command is an outbound instruction for the rover server. Commands are
// fire-and-forget: the server never acknowledges them on the channel.
type Command interface {
	Name() string
}

// Chassis modes accepted by SetChassisMode.
const (
	ChassisManual     = "manual"
	ChassisAutonomous = "autonomous"
	ChassisStop       = "stop"
)

// SetChassisMode switches the drive controller.
type SetChassisMode struct {
	Mode string `json:"mode"`
}

// ResetMap asks the server to forget its hazard map.
type ResetMap struct{}

// StartMission starts an autonomous traverse.
type StartMission struct {
	Task       string `json:"task"`
	DistanceCm int    `json:"distanceCm"`
}

// AbortMission stops the active mission.
type AbortMission struct{}

func (SetChassisMode) Name() string { return "setChassisMode" }
func (ResetMap) Name() string       { return "resetMap" }
func (StartMission) Name() string   { return "startMission" }
func (AbortMission) Name() string   { return "abortMission" }

// EncodeCommand frames a command in the shared envelope.
func EncodeCommand(c Command) (Envelope, error) {
	if c == nil {
		return Envelope{}, fmt.Errorf("telemetry: nil command")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", c.Name(), err)
	}
	return Envelope{Event: c.Name(), Data: data}, nil
}
