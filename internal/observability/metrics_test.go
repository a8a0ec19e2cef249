package observability

import (
	"path/filepath"
	"testing"
	"time"
)

func TestMetricsCalculator_Calculate(t *testing.T) {
	log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()
	rec := NewRecorder(log)

	record := func(typ string, data map[string]any) {
		t.Helper()
		if err := rec.LogEvent(typ, data); err != nil {
			t.Fatal(err)
		}
	}
	record("report.routed", map[string]any{"id": "a", "severity": "critical", "paths": []string{"nphies/claims/2024-05-01/a.json", "banking/2024-05-01/a.json"}})
	record("report.routed", map[string]any{"id": "b", "severity": "low", "paths": []string{"unclassified/2024-05-01/b.json"}})
	record("report.skipped", map[string]any{"file": "bad.json"})
	record("thread.registered", map[string]any{"count": 2})
	record("followup.recorded", nil)
	record("followup.recorded", nil)
	record("followup.sent", nil)
	record("followup.failed", nil)
	record("issue.created", map[string]any{"channel": "nphies"})
	record("issue.created", map[string]any{"channel": "nphies"})
	record("issue.skipped", nil)
	record("issue.closed", nil)
	record("issue.failed", nil)

	m, err := NewMetricsCalculator(log).Calculate(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("calculating metrics: %v", err)
	}

	checks := []struct {
		name      string
		got, want int
	}{
		{"reports routed", m.ReportsRouted, 2},
		{"reports skipped", m.ReportsSkipped, 1},
		{"artifacts written", m.ArtifactsWritten, 3},
		{"critical", m.ReportsBySeverity["critical"], 1},
		{"threads registered", m.ThreadsRegistered, 2},
		{"followups recorded", m.FollowUpsRecorded, 2},
		{"followups sent", m.FollowUpsSent, 1},
		{"followups failed", m.FollowUpsFailed, 1},
		{"issues created", m.IssuesCreated, 2},
		{"issues nphies", m.IssuesByChannel["nphies"], 2},
		{"issues existing", m.IssuesExisting, 1},
		{"issues closed", m.IssuesClosed, 1},
		{"issues failed", m.IssuesFailed, 1},
		{"event count", m.EventCount, 13},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if m.OldestEvent == nil || m.NewestEvent == nil || m.NewestEvent.Before(*m.OldestEvent) {
		t.Errorf("bad event range: %v .. %v", m.OldestEvent, m.NewestEvent)
	}
}

func TestMetricsCalculator_EmptyLog(t *testing.T) {
	log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	m, err := NewMetricsCalculator(log).Calculate(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if m.EventCount != 0 || m.OldestEvent != nil {
		t.Errorf("expected empty metrics, got %+v", m)
	}
}
