package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// Dashboard panel indices.
const (
	panelThreads = iota
	panelMetrics
	panelAlerts
	panelCount
)

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	severityCounts map[models.Severity]int
	dueCount       int
	metricsData    *metricsSnapshot
	alerts         []alertSnapshot

	loading bool
	err     error
}

type metricsSnapshot struct {
	reportsRouted  int
	reportsSkipped int
	followUpsSent  int
	followUpsFail  int
	issuesCreated  int
	issuesClosed   int
	eventCount     int
}

type alertSnapshot struct {
	severity string
	message  string
	time     string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	severityCounts map[models.Severity]int
	dueCount       int
	metrics        *metricsSnapshot
	alerts         []alertSnapshot
	err            error
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("124")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("124")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("124")).
			MarginBottom(1)

	sevCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	sevHigh     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	sevMedium   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	sevLow      = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	sevUnknown  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel:    panelThreads,
		loading:        true,
		severityCounts: make(map[models.Severity]int),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.severityCounts = msg.severityCounts
		m.dueCount = msg.dueCount
		m.metricsData = msg.metrics
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" Security Triage ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	panels := []string{m.renderThreadsPanel(), m.renderMetricsPanel(), m.renderAlertsPanel()}
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], colWidth-4)
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, panels...)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		for i := range panels {
			panels[i] = m.applyPanelStyle(i, panels[i], panelWidth)
		}
		body = lipgloss.JoinVertical(lipgloss.Left, panels...)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderThreadsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Open threads"))
	b.WriteString("\n")

	total := 0
	for _, c := range m.severityCounts {
		total += c
	}
	if total == 0 {
		b.WriteString("  No follow-up threads.")
		return b.String()
	}

	for _, sev := range models.Severities() {
		count := m.severityCounts[sev]
		if count == 0 {
			continue
		}
		b.WriteString(styleForSeverity(string(sev)).Render(fmt.Sprintf("  %-10s %d", sev, count)))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n  Total: %d\n  Due now: %d", total, m.dueCount)
	return b.String()
}

func (m dashboardModel) renderMetricsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Metrics (7d)"))
	b.WriteString("\n")

	if m.metricsData == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	md := m.metricsData
	lines := []struct {
		label string
		value int
	}{
		{"Events", md.eventCount},
		{"Routed", md.reportsRouted},
		{"Skipped", md.reportsSkipped},
		{"Sent", md.followUpsSent},
		{"Send fails", md.followUpsFail},
		{"Issues", md.issuesCreated},
		{"Closed", md.issuesClosed},
	}
	for _, l := range lines {
		fmt.Fprintf(&b, "  %-14s %d\n", l.label, l.value)
	}
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		fmt.Fprintf(&b, "  %s %s\n", sev, a.message)
	}
	fmt.Fprintf(&b, "\n  Total: %d alert(s)", len(m.alerts))
	return b.String()
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "critical":
		return sevCritical
	case "high":
		return sevHigh
	case "medium":
		return sevMedium
	case "low":
		return sevLow
	case "unknown":
		return sevUnknown
	default:
		return lipgloss.NewStyle()
	}
}

func loadData() tea.Msg {
	result := dataLoadedMsg{severityCounts: make(map[models.Severity]int)}
	now := time.Now().UTC()

	if Threads != nil {
		threads, err := Threads.Load()
		if err != nil {
			result.err = fmt.Errorf("loading threads: %w", err)
			return result
		}
		for _, t := range threads {
			result.severityCounts[t.Severity]++
			if due, err := core.DueSteps(t, now); err == nil {
				result.dueCount += len(due)
			}
		}
	}

	if MetricsCalc != nil {
		metrics, err := MetricsCalc.Calculate(now.AddDate(0, 0, -7))
		if err != nil {
			result.err = fmt.Errorf("loading metrics: %w", err)
			return result
		}
		result.metrics = &metricsSnapshot{
			reportsRouted:  metrics.ReportsRouted,
			reportsSkipped: metrics.ReportsSkipped,
			followUpsSent:  metrics.FollowUpsSent,
			followUpsFail:  metrics.FollowUpsFailed,
			issuesCreated:  metrics.IssuesCreated,
			issuesClosed:   metrics.IssuesClosed,
			eventCount:     metrics.EventCount,
		}
	}

	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		result.alerts = make([]alertSnapshot, 0, len(alerts))
		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{
				severity: string(a.Severity),
				message:  a.Message,
				time:     a.TriggeredAt.Format("2006-01-02 15:04 UTC"),
			})
		}
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for threads, metrics and alerts",
	Long: `Launch an interactive terminal dashboard showing open follow-up threads
by severity, pipeline metrics, and SLA alerts.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Threads == nil && MetricsCalc == nil {
			return fmt.Errorf("nothing to show: follow-up store and metrics are not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
