package dashboard

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"roverscope/internal/geometry"
	"roverscope/internal/risk"
	"roverscope/internal/stats"
	"roverscope/internal/telemetry"
)

var (
	colorOK    = lipgloss.Color("10")
	colorBad   = lipgloss.Color("9")
	colorWarn  = lipgloss.Color("11")
	colorMuted = lipgloss.Color("8")

	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted)
)

var tierColors = map[risk.Tier]lipgloss.Color{
	risk.Low:      colorOK,
	risk.Medium:   colorWarn,
	risk.High:     lipgloss.Color("208"),
	risk.Critical: colorBad,
}

func indicator(on bool) string {
	c := colorBad
	if on {
		c = colorOK
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m model) renderStatus() string {
	v := m.view
	link := "LINK " + indicator(v.Connected)
	parts := []string{titleStyle.Render("ROVERSCOPE"), link, v.MissionClock()}
	if v.Stale(m.opts.Now(), m.opts.StaleAfter) {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorWarn).Render("STALE"))
	}
	if p := v.Snapshot.Pose; p != nil && len(v.Snapshot.Perception.Map) > 0 {
		worst := risk.Worst(risk.AssessMap(*p, v.Snapshot.Perception.Map))
		parts = append(parts, lipgloss.NewStyle().Foreground(tierColors[worst]).Render("RISK "+worst.String()))
	}
	if v.HasSnapshot && v.Snapshot.Step != nil {
		parts = append(parts, fmt.Sprintf("step=%d", *v.Snapshot.Step))
	}
	parts = append(parts, mutedStyle.Render(fmt.Sprintf("pkts=%d bad=%d", v.Packets, v.Malformed)))
	return strings.Join(parts, "  ")
}

func (m model) renderBody() string {
	side := m.renderSide()
	if !m.showMap {
		return side
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderMap(), " ", side)
}

// mapSize fits the world into the space left of the side panel. Terminal
// cells are about twice as tall as wide.
func (m model) mapSize() (cols, rows int) {
	cols = min(maxMapCols, max(minMapCols, m.width-sidePanelCols-4))
	rows = max(4, int(math.Round(float64(cols)*m.proj.WorldH/m.proj.WorldW/2)))
	return cols, rows
}

func (m model) renderMap() string {
	cols, rows := m.mapSize()
	g := m.proj.Grid(cols, rows)
	s := m.view.Snapshot
	g.PlotTrail(m.view.PositionHistory)
	g.PlotHazards(s.Perception.Map, func(d telemetry.MapDetection) rune {
		if s.Pose == nil {
			return geometry.GlyphHazard
		}
		return tierGlyph(risk.Classify(deref(d.Depth), risk.RimDistance(*s.Pose, d)))
	})
	if s.Pose != nil {
		g.PlotRover(*s.Pose)
	}
	return panelStyle.Render(strings.Join(g.Lines(), "\n"))
}

func (m model) renderSide() string {
	w := sidePanelCols - 2
	s := m.view.Snapshot
	lines := []string{
		titleStyle.Render("Drive"),
		"thr " + gaugeBar(s.Drive.Throttle, w-4),
		"str " + gaugeBar(s.Drive.Steering, w-4),
	}
	if s.Pose != nil {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("x=%.2f y=%.2f hdg=%.0f°", s.Pose.X, s.Pose.Y, geometry.HeadingDegrees(s.Pose.Theta))))
	}

	sum := stats.Summarize(m.view.DepthHistory, 0)
	lines = append(lines, "", titleStyle.Render("Depth"))
	if sum.Count == 0 {
		lines = append(lines, mutedStyle.Render("no samples"))
	} else {
		lines = append(lines,
			stats.SparklineString(m.view.DepthHistory, w),
			fmt.Sprintf("now %.2f avg %.2f", sum.Current, sum.Average),
			fmt.Sprintf("min %.2f max %.2f", sum.Min, sum.Max),
		)
	}

	lines = append(lines, "", titleStyle.Render("Mission"))
	if ms := s.Mission; ms != nil {
		state := "idle"
		if ms.Active {
			state = "active"
		}
		lines = append(lines, fmt.Sprintf("%s %s %d%%", ms.Task, state, ms.Progress))
		lines = append(lines, m.bar.ViewAs(float64(ms.Progress)/100))
		if ms.Message != "" {
			msg := ms.Message
			if m.wrap {
				msg = wordwrap.String(msg, w)
			}
			lines = append(lines, msg)
		}
	} else {
		lines = append(lines, mutedStyle.Render("none"))
	}
	if n := len(s.Perception.CapturedFiles); n > 0 {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("captured %d file(s)", n)))
	}
	return panelStyle.Width(w).Render(strings.Join(lines, "\n"))
}

func (m model) renderFooter() string {
	admin := "Admin " + indicator(m.admin != "")
	if m.admin != "" {
		admin += " " + m.admin
	}
	control := "Control " + indicator(m.opts.Commander != nil)
	return strings.Join([]string{admin, control, "Map " + indicator(m.showMap), "Wrap " + indicator(m.wrap), "h/? help"}, " | ")
}

// gaugeBar draws value in [-1, 1] as a bar growing from a centre mark.
func gaugeBar(value float64, width int) string {
	half := max(1, width/2)
	fill := int(math.Round(math.Abs(stats.FillPercent(value, -1, 1)) / 50 * float64(half)))
	left := strings.Repeat("·", half)
	right := strings.Repeat("·", half)
	if value < 0 {
		left = strings.Repeat("·", half-fill) + strings.Repeat("█", fill)
	} else {
		right = strings.Repeat("█", fill) + strings.Repeat("·", half-fill)
	}
	return left + "|" + right
}

// tierGlyph marks hazards on the map by danger.
func tierGlyph(t risk.Tier) rune {
	switch t {
	case risk.Critical:
		return 'X'
	case risk.High:
		return '@'
	case risk.Medium:
		return 'O'
	}
	return geometry.GlyphHazard
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
