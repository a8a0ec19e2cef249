package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/observability"
	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// --- Fake implementations ---

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
}

func (f *fakeMetricsCalculator) Calculate(_ time.Time) (*observability.Metrics, error) {
	return f.metrics, nil
}

type fakeAlertEngine struct {
	alerts []observability.Alert
}

func (f *fakeAlertEngine) Evaluate() ([]observability.Alert, error) {
	return f.alerts, nil
}

// --- Test helpers ---

func threadStore(t *testing.T, threads ...models.Thread) storage.ThreadRepository {
	t.Helper()
	repo := storage.NewJSONThreadStore(filepath.Join(t.TempDir(), "followups.json"))
	if err := repo.Save(threads); err != nil {
		t.Fatalf("saving threads: %v", err)
	}
	return repo
}

// callTool connects an in-memory client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()
	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}
	return result
}

// decode reads a tool's structured output, falling back to its text content.
func decode(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var data []byte
	if result.StructuredContent != nil {
		data, _ = json.Marshal(result.StructuredContent)
	} else {
		data = []byte(extractText(result))
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshalling output: %v (%s)", err, data)
	}
}

func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Tests ---

func TestClassifyReport(t *testing.T) {
	srv := NewServer(Deps{}, "test")

	var out classifyOutput
	decode(t, callTool(t, srv, "classify_report", map[string]any{
		"subject": "Remote code execution in eligibility API",
		"body":    "",
	}), &out)

	if out.Severity != "critical" || out.SLAHours != 24 || !out.Escalate {
		t.Errorf("unexpected classification: %+v", out)
	}
	if out.Categories["nphies"] != "eligibility" {
		t.Errorf("nphies category = %q, want eligibility", out.Categories["nphies"])
	}
	if out.Categories["banking"] != models.CategoryOther {
		t.Errorf("banking category = %q, want other", out.Categories["banking"])
	}
}

func TestAutoReply(t *testing.T) {
	srv := NewServer(Deps{Responder: core.NewAutoResponder([]string{"ciso@example.com"})}, "test")

	var out core.AutoReply
	decode(t, callTool(t, srv, "auto_reply", map[string]any{
		"subject": "SQL injection found in login",
		"from":    "r@example.com",
	}), &out)

	if out.Severity != models.SeverityHigh || out.SLAHours != 72 || !out.Escalate {
		t.Errorf("unexpected reply: %+v", out)
	}
	if out.InitialReply.To != "r@example.com" || len(out.InitialReply.CC) != 1 {
		t.Errorf("unexpected recipients: %+v", out.InitialReply)
	}
	want := []models.FollowUpStep{{InHours: 24, Reason: "Triage update"}, {InHours: 72, Reason: "Mitigation or status"}}
	if len(out.FollowUps) != len(want) || out.FollowUps[0] != want[0] || out.FollowUps[1] != want[1] {
		t.Errorf("follow-ups = %+v, want %+v", out.FollowUps, want)
	}
}

func TestListThreads(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := threadStore(t,
		core.NewThread("b", models.Report{Subject: "ransomware note"}, now.Add(time.Hour)),
		core.NewThread("a", models.Report{Subject: "missing header"}, now),
	)
	srv := NewServer(Deps{Threads: repo}, "test")

	var all listThreadsOutput
	decode(t, callTool(t, srv, "list_threads", map[string]any{}), &all)
	if all.Count != 2 || all.Threads[0].ID != "a" {
		t.Fatalf("unexpected threads: %+v", all)
	}
	if all.Threads[1].PlanSteps != 3 {
		t.Errorf("critical plan steps = %d, want 3", all.Threads[1].PlanSteps)
	}

	var crit listThreadsOutput
	decode(t, callTool(t, srv, "list_threads", map[string]any{"severity": "critical"}), &crit)
	if crit.Count != 1 || crit.Threads[0].ID != "b" {
		t.Errorf("unexpected filtered threads: %+v", crit)
	}
}

func TestListThreadsWithoutStore(t *testing.T) {
	result := callTool(t, NewServer(Deps{}, "test"), "list_threads", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error result without a store")
	}
}

func TestDueFollowUps(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := threadStore(t, core.NewThread("m1", models.Report{Subject: "auth bypass", From: "r@example.com"}, created))
	sched := core.NewScheduler(core.SchedulerConfig{
		Threads: repo,
		Now:     func() time.Time { return created.Add(25 * time.Hour) },
	})
	srv := NewServer(Deps{Threads: repo, Scheduler: sched}, "test")

	var out dueFollowUpsOutput
	decode(t, callTool(t, srv, "due_followups", map[string]any{}), &out)
	if out.Count != 2 {
		t.Fatalf("got %d due steps, want 2: %+v", out.Count, out.Due)
	}
	if out.Due[0].Reason != "Containment check" || out.Due[1].Reason != "Triage update" {
		t.Errorf("unexpected steps: %+v", out.Due)
	}

	// Listing must not record anything.
	threads, err := repo.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(threads[0].FollowUpsSent) != 0 {
		t.Errorf("due_followups recorded steps: %v", threads[0].FollowUpsSent)
	}
}

func TestGetMetrics(t *testing.T) {
	oldest := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calc := &fakeMetricsCalculator{metrics: &observability.Metrics{
		ReportsRouted:     4,
		ReportsBySeverity: map[string]int{"high": 4},
		IssuesCreated:     2,
		EventCount:        9,
		OldestEvent:       &oldest,
	}}
	srv := NewServer(Deps{Metrics: calc}, "test")

	var out metricsOutput
	decode(t, callTool(t, srv, "get_metrics", map[string]any{"since": "30d"}), &out)
	if out.ReportsRouted != 4 || out.IssuesCreated != 2 || out.EventCount != 9 {
		t.Errorf("unexpected metrics: %+v", out)
	}
	if out.OldestEvent != "2025-01-01T00:00:00Z" {
		t.Errorf("oldest = %q", out.OldestEvent)
	}
}

func TestGetMetricsInvalidSince(t *testing.T) {
	srv := NewServer(Deps{Metrics: &fakeMetricsCalculator{metrics: &observability.Metrics{}}}, "test")
	result := callTool(t, srv, "get_metrics", map[string]any{"since": "7w"})
	if !result.IsError {
		t.Fatal("expected error for unsupported suffix")
	}
}

func TestGetAlerts(t *testing.T) {
	engine := &fakeAlertEngine{alerts: []observability.Alert{{
		ID:          "sla-m1",
		Condition:   "sla_breached",
		Severity:    observability.SeverityHigh,
		Message:     "critical report m1 is past its 24h SLA",
		TriggeredAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	srv := NewServer(Deps{Alerts: engine}, "test")

	var out getAlertsOutput
	decode(t, callTool(t, srv, "get_alerts", map[string]any{}), &out)
	if out.Count != 1 || out.Alerts[0].Condition != "sla_breached" || out.Alerts[0].TriggeredAt != "2025-01-02T03:04:05Z" {
		t.Errorf("unexpected alerts: %+v", out)
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"7d", false},
		{"24h", false},
		{"d", true},
		{"xd", true},
		{"5m", true},
	}
	for _, tt := range tests {
		_, err := parseSince(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSince(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
