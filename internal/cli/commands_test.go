package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/observability"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

type alertsMock struct {
	evaluateFn func() ([]observability.Alert, error)
}

func (m *alertsMock) Evaluate() ([]observability.Alert, error) {
	return m.evaluateFn()
}

type notifierMock struct {
	got []observability.Alert
	err error
}

func (m *notifierMock) Notify(_ context.Context, alerts []observability.Alert) error {
	m.got = alerts
	return m.err
}

func TestInitCmd_ScaffoldsOnce(t *testing.T) {
	cfg := testWorkspace(t)

	out, err := execute(t, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, p := range []string{cfg.Paths.Channels, cfg.Paths.Owners, cfg.Paths.Resolved, filepath.Join(BasePath, ".sectriage.yaml")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s not written: %v", p, err)
		}
	}
	if info, err := os.Stat(cfg.Paths.Inbox); err != nil || !info.IsDir() {
		t.Errorf("inbox dir not created: %v", err)
	}
	if strings.Count(out, "wrote") != 4 {
		t.Errorf("expected 4 files written:\n%s", out)
	}

	channels, err := core.LoadChannelMap(cfg.Paths.Channels)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := channels["nphies"]; !ok {
		t.Errorf("default channels missing nphies: %v", channels)
	}

	out, err = execute(t, "init")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "kept") != 4 {
		t.Errorf("second init should keep existing files:\n%s", out)
	}
}

func TestInitCmd_WrittenConfigLoads(t *testing.T) {
	testWorkspace(t)
	if _, err := execute(t, "init"); err != nil {
		t.Fatal(err)
	}
	mgr := core.NewConfigurationManager(BasePath)
	cfg, err := mgr.Load()
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if err := mgr.ValidateConfig(cfg); err != nil {
		t.Errorf("written config invalid: %v", err)
	}
}

func TestConfigShowCmd_HidesSecrets(t *testing.T) {
	cfg := testWorkspace(t)
	cfg.Publisher.Token = "ghp_supersecret"
	cfg.Alerts.SlackWebhook = "https://hooks.slack.com/services/secret"
	cfg.Publisher.Repo = "acme/security"

	out, err := execute(t, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "supersecret") || strings.Contains(out, "hooks.slack.com") {
		t.Errorf("config show leaked a secret:\n%s", out)
	}
	if !strings.Contains(out, "repo: acme/security") {
		t.Errorf("config show missing repo:\n%s", out)
	}
}

func TestAlertsCmd_NilEngine(t *testing.T) {
	testWorkspace(t)
	AlertEngine = nil

	err := alertsCmd.RunE(alertsCmd, []string{})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestAlertsCmd_NoAlerts(t *testing.T) {
	testWorkspace(t)
	AlertEngine = &alertsMock{evaluateFn: func() ([]observability.Alert, error) { return nil, nil }}

	out, err := execute(t, "alerts")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No active alerts.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestAlertsCmd_Notify(t *testing.T) {
	testWorkspace(t)
	alerts := []observability.Alert{
		{ID: "sla-r1", Condition: "sla_breached", Severity: observability.SeverityHigh, Message: "r1 past its 24h SLA", TriggeredAt: time.Now().UTC()},
	}
	AlertEngine = &alertsMock{evaluateFn: func() ([]observability.Alert, error) { return alerts, nil }}

	_, err := execute(t, "alerts", "--notify")
	if err == nil || !strings.Contains(err.Error(), "no notifier") {
		t.Fatalf("expected missing notifier error, got %v", err)
	}

	n := &notifierMock{}
	Notifier = n
	out, err := execute(t, "alerts", "--notify")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[HIGH] r1 past its 24h SLA") || !strings.Contains(out, "Notification sent.") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if len(n.got) != 1 {
		t.Errorf("notifier got %d alerts, want 1", len(n.got))
	}

	Notifier = &notifierMock{err: errors.New("webhook down")}
	if _, err := execute(t, "alerts", "--notify"); err == nil {
		t.Error("expected notifier error to propagate")
	}
}

func TestAlertsCmd_EvaluateError(t *testing.T) {
	testWorkspace(t)
	AlertEngine = &alertsMock{evaluateFn: func() ([]observability.Alert, error) {
		return nil, errors.New("store unreadable")
	}}

	if _, err := execute(t, "alerts"); err == nil || !strings.Contains(err.Error(), "evaluating alerts") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestMetricsCmd(t *testing.T) {
	testWorkspace(t)
	for _, typ := range []string{"report.routed", "report.routed", "followup.sent"} {
		if err := Events.LogEvent(typ, map[string]any{"severity": "high"}); err != nil {
			t.Fatal(err)
		}
	}

	out, err := execute(t, "metrics")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Reports routed:", "Follow-ups sent:", "Reports by severity:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "metrics", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"reports_routed": 2`) {
		t.Errorf("json output missing count:\n%s", out)
	}
}

func TestParseSinceDuration(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", now.AddDate(0, 0, -7), false},
		{"7d", now.AddDate(0, 0, -7), false},
		{"30d", now.AddDate(0, 0, -30), false},
		{"24h", now.Add(-24 * time.Hour), false},
		{"-3d", time.Time{}, true},
		{"xd", time.Time{}, true},
		{"2w", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSinceDuration(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %t", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	testWorkspace(t)
	SetVersionInfo("1.2.3", "abc123", "2024-06-01")
	defer SetVersionInfo("dev", "none", "unknown")

	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "sectriage 1.2.3") || !strings.Contains(out, "abc123") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestDashboardModel_Update(t *testing.T) {
	m := newDashboardModel()
	if m.View() != "Loading..." {
		t.Errorf("zero-width view = %q", m.View())
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	m = next.(dashboardModel)
	next, _ = m.Update(dataLoadedMsg{
		severityCounts: map[models.Severity]int{models.SeverityCritical: 2, models.SeverityLow: 1},
		dueCount:       3,
		metrics:        &metricsSnapshot{reportsRouted: 5},
		alerts:         []alertSnapshot{{severity: "high", message: "r1 past its SLA"}},
	})
	m = next.(dashboardModel)

	view := m.View()
	for _, want := range []string{"Security Triage", "critical", "Due now: 3", "Routed", "r1 past its SLA"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if next.(dashboardModel).activePanel != panelMetrics {
		t.Error("tab should move to the metrics panel")
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("q should quit")
	}
}

func TestDashboardModel_Error(t *testing.T) {
	m := newDashboardModel()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	next, _ = next.(dashboardModel).Update(dataLoadedMsg{err: errors.New("boom")})
	if !strings.Contains(next.(dashboardModel).View(), "Error: boom") {
		t.Error("error not rendered")
	}
}

func TestLoadData_CountsThreads(t *testing.T) {
	testWorkspace(t)
	seedThread(t, "a", models.SeverityCritical, 5*time.Hour)
	seedThread(t, "b", models.SeverityLow, time.Hour)

	msg := loadData().(dataLoadedMsg)
	if msg.err != nil {
		t.Fatal(msg.err)
	}
	if msg.severityCounts[models.SeverityCritical] != 1 || msg.severityCounts[models.SeverityLow] != 1 {
		t.Errorf("severity counts = %v", msg.severityCounts)
	}
	if msg.dueCount != 1 {
		t.Errorf("dueCount = %d, want 1", msg.dueCount)
	}
	if msg.metrics == nil {
		t.Error("metrics not loaded")
	}
}
