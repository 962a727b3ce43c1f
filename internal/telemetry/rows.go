package telemetry

import (
	"os"
	"time"
)

// PoseRow is one recorded rover pose for GreptimeDB.
type PoseRow struct {
	SessionID string    `json:"session_id"` // TAG
	Step      int64     `json:"step"`       // FIELD, -1 when the packet had none
	X         float64   `json:"x"`          // FIELD
	Y         float64   `json:"y"`          // FIELD
	Heading   float64   `json:"heading"`    // FIELD, degrees
	Throttle  float64   `json:"throttle"`   // FIELD
	Steering  float64   `json:"steering"`   // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// HazardRow is one hazard observation with its danger tier.
type HazardRow struct {
	SessionID string    `json:"session_id"` // TAG
	HazardID  string    `json:"hazard_id"`  // TAG
	Label     string    `json:"label"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Radius    float64   `json:"radius"`
	Depth     float64   `json:"depth"`
	Distance  float64   `json:"distance"`
	Tier      string    `json:"tier"`
	Timestamp time.Time `json:"ts"`
}

// PoseTableName defaults to "rover_pose" and can be overridden with
// GREPTIMEDB_TABLE.
var PoseTableName = envOr("GREPTIMEDB_TABLE", "rover_pose")

// HazardTableName defaults to "rover_hazards" and can be overridden with
// HAZARD_TABLE.
var HazardTableName = envOr("HAZARD_TABLE", "rover_hazards")

func (PoseRow) TableName() string   { return PoseTableName }
func (HazardRow) TableName() string { return HazardTableName }

// PoseRowOf converts a snapshot into a row. ok is false when the snapshot
// carries no pose.
func PoseRowOf(session string, s Snapshot) (PoseRow, bool) {
	if s.Pose == nil {
		return PoseRow{}, false
	}
	step := int64(-1)
	if s.Step != nil {
		step = int64(*s.Step)
	}
	return PoseRow{
		SessionID: session,
		Step:      step,
		X:         s.Pose.X,
		Y:         s.Pose.Y,
		Heading:   s.Pose.ScreenHeading(),
		Throttle:  s.Drive.Throttle,
		Steering:  s.Drive.Steering,
		Timestamp: s.ReceivedAt,
	}, true
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
