package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

func TestRunMetrics_WriteTextfile(t *testing.T) {
	m := NewRunMetrics()
	m.ObserveRoute(&core.RouteResult{Processed: 3, Artifacts: 4, Skipped: []models.InboxFailure{{File: "bad.json"}}}, 2*time.Second)
	m.ObserveFollowUp(&core.FollowUpResult{Recorded: 2, Sent: 1, Failed: 1}, time.Second)
	m.ObservePublish(&core.PublishResult{Created: 1, Closed: 1}, time.Second)
	m.ObservePublish(nil, 0)

	path := filepath.Join(t.TempDir(), "textfile", "sectriage.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("writing textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`sectriage_items_total{outcome="routed",stage="route"} 3`,
		`sectriage_items_total{outcome="artifacts",stage="route"} 4`,
		`sectriage_items_total{outcome="skipped",stage="route"} 1`,
		`sectriage_items_total{outcome="failed",stage="followup"} 1`,
		`sectriage_items_total{outcome="created",stage="publish"} 1`,
		`sectriage_stage_duration_seconds{stage="route"} 2`,
		`sectriage_stage_last_run_timestamp_seconds{stage="publish"}`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestRunMetrics_Gather(t *testing.T) {
	m := NewRunMetrics()
	m.ObserveRoute(&core.RouteResult{Processed: 1}, time.Millisecond)
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 3 {
		t.Errorf("got %d metric families, want 3", len(families))
	}
}
