package store

import (
	"fmt"
	"time"

	"roverscope/internal/telemetry"
)

// View is a copy of the store state. It shares no memory with the store, so
// the caller may keep or modify it.
type View struct {
	Snapshot           telemetry.Snapshot      `json:"snapshot"`
	HasSnapshot        bool                    `json:"has_snapshot"`
	Connected          bool                    `json:"connected"`
	MissionTimeSeconds int64                   `json:"mission_time_seconds"`
	PositionHistory    []telemetry.Pose        `json:"position_history"`
	DepthHistory       []telemetry.DepthSample `json:"depth_history"`
	Packets            uint64                  `json:"packets"`
	Malformed          uint64                  `json:"malformed"`
	LastPacketAt       time.Time               `json:"last_packet_at"`
}

// MissionClock formats the mission time as T+HH:MM:SS.
func (v View) MissionClock() string {
	return FormatMissionClock(v.MissionTimeSeconds)
}

// Stale reports whether no telemetry arrived within threshold of now. A view
// that never saw a packet is stale.
func (v View) Stale(now time.Time, threshold time.Duration) bool {
	if !v.HasSnapshot {
		return true
	}
	return now.Sub(v.LastPacketAt) > threshold
}

// FormatMissionClock renders seconds as T+HH:MM:SS. Hours are not wrapped.
func FormatMissionClock(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("T+%02d:%02d:%02d", sec/3600, sec/60%60, sec%60)
}
