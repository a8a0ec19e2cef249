package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

const sqliReport = `{"subject":"SQL injection in login form","body":"The username field is not escaped.","from":"researcher@example.com"}`

func TestRouteCmd_RoutesAndRegisters(t *testing.T) {
	cfg := testWorkspace(t)
	writeInbox(t, "r1.json", sqliReport)
	writeInbox(t, "broken.json", "{not json")

	out, err := execute(t, "route", "--register")
	if err != nil {
		t.Fatalf("route: %v", err)
	}

	var res core.RouteResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding summary %q: %v", out, err)
	}
	if res.Processed != 1 || res.ThreadsRegistered != 1 {
		t.Errorf("processed=%d registered=%d, want 1 and 1", res.Processed, res.ThreadsRegistered)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].File != "broken.json" {
		t.Errorf("skipped = %+v, want broken.json", res.Skipped)
	}
	if len(res.Routed) != 1 || res.Routed[0].Severity != models.SeverityHigh {
		t.Fatalf("routed = %+v", res.Routed)
	}
	for _, p := range res.Routed[0].Paths {
		if !strings.HasPrefix(p, "auth/") {
			t.Errorf("path %s not in auth channel", p)
		}
		if _, err := os.Stat(filepath.Join(cfg.Paths.Pipelines, filepath.FromSlash(p))); err != nil {
			t.Errorf("artifact %s not written: %v", p, err)
		}
	}

	threads, err := Threads.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 || threads[0].ID != res.Routed[0].ID {
		t.Errorf("threads = %+v", threads)
	}
}

func TestRouteCmd_RerunIsIdempotent(t *testing.T) {
	testWorkspace(t)
	writeInbox(t, "r1.json", sqliReport)

	first, err := execute(t, "route", "--register")
	if err != nil {
		t.Fatal(err)
	}
	second, err := execute(t, "route", "--register")
	if err != nil {
		t.Fatal(err)
	}

	var a, b core.RouteResult
	if err := json.Unmarshal([]byte(first), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(second), &b); err != nil {
		t.Fatal(err)
	}
	if strings.Join(a.Routed[0].Paths, ",") != strings.Join(b.Routed[0].Paths, ",") {
		t.Errorf("paths changed between runs: %v vs %v", a.Routed[0].Paths, b.Routed[0].Paths)
	}
	if b.ThreadsRegistered != 0 {
		t.Errorf("second run registered %d threads, want 0", b.ThreadsRegistered)
	}
}

func TestRouteCmd_WithoutConfig(t *testing.T) {
	testWorkspace(t)
	Cfg = nil
	if _, err := execute(t, "route"); err == nil {
		t.Fatal("expected error without configuration")
	}
}

func TestRouteCmd_WritesMetricsTextfile(t *testing.T) {
	cfg := testWorkspace(t)
	cfg.Textfile = filepath.Join(t.TempDir(), "sectriage.prom")
	writeInbox(t, "r1.json", sqliReport)

	if _, err := execute(t, "route"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(cfg.Textfile)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	if !strings.Contains(string(data), `sectriage_items_total{outcome="routed",stage="route"} 1`) {
		t.Errorf("textfile missing routed counter:\n%s", data)
	}
}
