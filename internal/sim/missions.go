package sim

import (
	"bytes"
	"fmt"

	"roverscope/internal/api"
)

// Missions returns the mission history, oldest first.
func (s *Simulator) Missions() []api.Mission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Mission, 0, len(s.missions))
	for _, m := range s.missions {
		out = append(out, api.Mission{
			ID:        m.id,
			Task:      m.task,
			Status:    m.state,
			StartedAt: m.startedAt,
			EndedAt:   m.endedAt,
		})
	}
	return out
}

// Report renders a plain-text report for mission id. ok is false when the
// mission is unknown.
func (s *Simulator) Report(id string) (report []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.missions {
		if m.id != id {
			continue
		}
		var b bytes.Buffer
		fmt.Fprintf(&b, "Mission %s\n", m.id)
		fmt.Fprintf(&b, "Task:      %s\n", m.task)
		fmt.Fprintf(&b, "Status:    %s\n", m.state)
		fmt.Fprintf(&b, "Distance:  %.2f of %.2f m (%d%%)\n", m.travelled, m.targetM, m.progress())
		fmt.Fprintf(&b, "Started:   %s\n", m.startedAt.UTC().Format("2006-01-02 15:04:05"))
		if !m.endedAt.IsZero() {
			fmt.Fprintf(&b, "Ended:     %s\n", m.endedAt.UTC().Format("2006-01-02 15:04:05"))
		}
		return b.Bytes(), true
	}
	return nil, false
}
