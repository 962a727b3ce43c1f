package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"roverscope/internal/geometry"
	"roverscope/internal/risk"
	"roverscope/internal/store"
	"roverscope/internal/telemetry"
)

const (
	maxLogLines   = 200
	maxRiskRows   = 6
	minMapCols    = 12
	maxMapCols    = 48
	sidePanelCols = 34
)

type model struct {
	opts     Options
	proj     geometry.Projector
	view     store.View
	haveView bool
	risks    table.Model
	logVP    viewport.Model
	bar      progress.Model
	logs     []string
	width    int
	height   int
	admin    string
	help     bool
	wrap     bool
	showMap  bool
}

func newModel(opts Options) model {
	opts = opts.withDefaults()
	cols := []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Label", Width: 10},
		{Title: "Depth", Width: 6},
		{Title: "Dist", Width: 6},
		{Title: "Tier", Width: 9},
	}
	return model{
		opts:    opts,
		proj:    geometry.NewProjector(opts.WorldW, opts.WorldH, 1, 1),
		risks:   table.New(table.WithColumns(cols), table.WithHeight(2)),
		logVP:   viewport.New(0, 0),
		bar:     progress.New(progress.WithWidth(sidePanelCols-4), progress.WithoutPercentage(), progress.WithDefaultGradient()),
		showMap: true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logVP.Width = msg.Width
		m.risks.SetWidth(msg.Width)
	case viewMsg:
		m.applyView(msg.View)
	case logMsg:
		m.appendLog(msg.line)
	case adminMsg:
		m.admin = msg.addr
	case commandMsg:
		if msg.err != nil {
			m.appendLog(fmt.Sprintf("%s failed: %v", msg.name, msg.err))
		} else {
			m.appendLog("sent " + msg.name)
		}
	case tea.KeyMsg:
		var cmd tea.Cmd
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "h", "?":
			m.help = !m.help
		case "m":
			m.showMap = !m.showMap
		case "w":
			m.wrap = !m.wrap
		case "r":
			cmd = m.send(telemetry.ResetMap{})
		case "1":
			cmd = m.send(telemetry.SetChassisMode{Mode: telemetry.ChassisManual})
		case "2":
			cmd = m.send(telemetry.SetChassisMode{Mode: telemetry.ChassisAutonomous})
		case " ", "space", "x":
			cmd = m.send(telemetry.SetChassisMode{Mode: telemetry.ChassisStop})
		default:
			m.logVP, cmd = m.logVP.Update(msg)
		}
		m.layout()
		return m, cmd
	}
	m.layout()
	return m, nil
}

// applyView stores v and logs connection and map transitions.
func (m *model) applyView(v store.View) {
	if m.haveView {
		if v.Connected != m.view.Connected {
			if v.Connected {
				m.appendLog("link up")
			} else {
				m.appendLog("link down")
			}
		}
		if len(m.view.PositionHistory) > 0 && len(v.PositionHistory) == 0 {
			m.appendLog("map cleared")
		}
		if v.Malformed > m.view.Malformed {
			m.appendLog(fmt.Sprintf("dropped %d malformed packet(s)", v.Malformed-m.view.Malformed))
		}
	}
	m.view = v
	m.haveView = true
	m.risks.SetRows(riskRows(v.Snapshot))
}

func (m *model) appendLog(line string) {
	m.logs = append(m.logs, m.opts.Now().Format("15:04:05")+" "+line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshLog()
}

func (m *model) refreshLog() {
	lines := m.logs
	if m.wrap && m.logVP.Width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.logVP.Width)
		}
	}
	m.logVP.SetContent(strings.Join(lines, "\n"))
	m.logVP.GotoBottom()
}

// layout gives the log pane whatever height the other sections leave.
func (m *model) layout() {
	n := len(m.risks.Rows())
	m.risks.SetHeight(min(max(n, 1), maxRiskRows) + 1)
	used := lipgloss.Height(m.renderStatus()) + lipgloss.Height(m.renderBody()) +
		lipgloss.Height(m.risks.View()) + lipgloss.Height(m.renderFooter()) + 4
	m.logVP.Height = max(1, m.height-used)
	m.refreshLog()
}

func (m model) send(c telemetry.Command) tea.Cmd {
	if m.opts.Commander == nil {
		return func() tea.Msg { return logMsg{line: "read-only: " + c.Name() + " not sent"} }
	}
	commander := m.opts.Commander
	return func() tea.Msg {
		return commandMsg{name: c.Name(), err: commander(c)}
	}
}

// riskRows lists mapped hazards and live detections, most dangerous first.
func riskRows(s telemetry.Snapshot) []table.Row {
	var as []risk.Assessment
	if s.Pose != nil {
		as = append(as, risk.AssessMap(*s.Pose, s.Perception.Map)...)
	}
	for _, a := range risk.AssessLive(s.Perception.Live) {
		a.ID = "live"
		as = append(as, a)
	}
	sort.SliceStable(as, func(i, j int) bool { return as[i].Tier > as[j].Tier })
	rows := make([]table.Row, len(as))
	for i, a := range as {
		rows[i] = table.Row{a.ID, a.Label, fmt.Sprintf("%.2f", a.Depth), fmt.Sprintf("%.2f", a.Distance), a.Tier.String()}
	}
	return rows
}

func (m model) View() string {
	if m.help {
		return renderHelp()
	}
	divider := strings.Repeat("─", max(m.width, 1))
	sections := []string{
		m.renderStatus(),
		divider,
		m.renderBody(),
		divider,
		m.risks.View(),
		divider,
		m.logVP.View(),
		divider,
		m.renderFooter(),
	}
	return strings.Join(sections, "\n")
}

func renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q      quit",
		" m      toggle map",
		" w      toggle wrap for the event log",
		" r      reset the hazard map",
		" 1      manual chassis mode",
		" 2      autonomous chassis mode",
		" space  stop chassis",
		" up/dn  scroll the event log",
		" h/?    toggle this help view",
	}
	return strings.Join(lines, "\n")
}
