package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/integration"
	"github.com/valter-silva-au/sectriage/internal/observability"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type fakeIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

// issueServer is a minimal GitHub issues API for one repository.
type issueServer struct {
	mu       sync.Mutex
	issues   []fakeIssue
	comments map[int][]string
}

func newIssueServer(t *testing.T) (*issueServer, string) {
	t.Helper()
	s := &issueServer{comments: map[int][]string{}}
	send := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		q := r.URL.Query().Get("q")
		items := []fakeIssue{}
		for _, is := range s.issues {
			_, phrase, _ := strings.Cut(q, `"`)
			if is.State == "open" && strings.Contains(is.Title, strings.TrimSuffix(phrase, `"`)) {
				items = append(items, is)
			}
		}
		send(w, http.StatusOK, map[string]any{"total_count": len(items), "items": items})
	})
	mux.HandleFunc("GET /repos/acme/sec/issues", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		open := []fakeIssue{}
		for _, is := range s.issues {
			if is.State == "open" {
				open = append(open, is)
			}
		}
		send(w, http.StatusOK, open)
	})
	mux.HandleFunc("GET /repos/acme/sec/labels/{name}", func(w http.ResponseWriter, r *http.Request) {
		send(w, http.StatusOK, map[string]string{"name": r.PathValue("name")})
	})
	mux.HandleFunc("POST /repos/acme/sec/issues", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Title string `json:"title"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		is := fakeIssue{Number: len(s.issues) + 1, Title: body.Title, State: "open"}
		s.issues = append(s.issues, is)
		s.mu.Unlock()
		send(w, http.StatusCreated, is)
	})
	mux.HandleFunc("POST /repos/acme/sec/issues/{n}/comments", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.PathValue("n"))
		var body struct {
			Body string `json:"body"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.comments[n] = append(s.comments[n], body.Body)
		s.mu.Unlock()
		send(w, http.StatusCreated, map[string]any{"id": n, "body": body.Body})
	})
	mux.HandleFunc("PATCH /repos/acme/sec/issues/{n}", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.PathValue("n"))
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.issues {
			if s.issues[i].Number == n {
				s.issues[i].State = "closed"
				send(w, http.StatusOK, s.issues[i])
				return
			}
		}
		http.NotFound(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func (s *issueServer) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, is := range s.issues {
		if is.State == "open" {
			n++
		}
	}
	return n
}

// newWorkspaceApp creates an App over an initialized workspace.
func newWorkspaceApp(t *testing.T) *App {
	t.Helper()
	for _, env := range []string{"SECURITY_INBOX", "SECURITY_PIPELINES", "SECURITY_FOLLOWUPS", "SECTRIAGE_STORE", "SECTRIAGE_EVENT_LOG"} {
		t.Setenv(env, "")
	}
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, BaseDirName, "inbox"), 0o755); err != nil {
		t.Fatal(err)
	}
	app, err := NewApp(dir)
	if err != nil {
		t.Fatalf("creating test app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func dropReport(t *testing.T, app *App, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(app.Config.Paths.Inbox, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// =========================================================================
// Route -> publish -> re-publish -> delete artifact -> publish closes
// =========================================================================

func TestIntegration_RoutePublishAndClose(t *testing.T) {
	app := newWorkspaceApp(t)
	gh, url := newIssueServer(t)
	ctx := context.Background()

	channels := models.ChannelMap{
		"nphies": {"nphies", "fhir"},
		"auth":   {"login", "password"},
	}
	dropReport(t, app, "a.json", `{"id":"rep-1","subject":"FHIR eligibility endpoint leaks tokens","body":"NPHIES eligibility responses include bearer tokens","from":"a@example.com"}`)
	dropReport(t, app, "b.json", `{"id":"rep-2","subject":"Weak password policy on login","body":"Six characters accepted","from":"b@example.com"}`)

	router := core.NewRouter(core.RouterConfig{
		Inbox:     integration.NewInbox(app.Config.Paths.Inbox),
		Artifacts: app.Artifacts,
		Channels:  channels,
		Threads:   app.Threads,
		Events:    app.Events,
	})
	routed, err := router.Run(ctx)
	require.NoError(t, err, "routing")
	require.Equal(t, 2, routed.Processed)
	require.Equal(t, 2, routed.ThreadsRegistered)

	tracker, err := integration.NewGitHubTracker(models.PublisherConfig{Repo: "acme/sec", APIURL: url, RateLimit: 1000}, nil, nil)
	require.NoError(t, err)
	pub := core.NewPublisher(core.PublisherConfig{
		Tracker:   tracker,
		Artifacts: app.Artifacts,
		Owners:    models.OwnersConfig{models.Wildcard: {models.Wildcard: {Team: "@security-team"}}},
		Events:    app.Events,
	})

	first, err := pub.Run(ctx)
	if err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if first.Created != 2 || first.Failed != 0 {
		t.Fatalf("first publish: %+v", first)
	}

	second, err := pub.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 0 || second.Existing != 2 {
		t.Errorf("re-publish should create nothing: %+v", second)
	}

	artifacts, err := app.Artifacts.List()
	if err != nil {
		t.Fatal(err)
	}
	var removed string
	for _, a := range artifacts {
		if a.ID == "rep-2" {
			removed = a.RelPath
		}
	}
	if removed == "" {
		t.Fatal("rep-2 artifact not found")
	}
	if err := os.Remove(filepath.Join(app.Config.Paths.Pipelines, filepath.FromSlash(removed))); err != nil {
		t.Fatal(err)
	}

	third, err := pub.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Closed, "issues closed")
	assert.Equal(t, 1, gh.openCount(), "open issues")

	metrics, err := app.MetricsCalc.Calculate(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.ReportsRouted)
	assert.Equal(t, 2, metrics.IssuesCreated)
	assert.Equal(t, 1, metrics.IssuesClosed)
}

// =========================================================================
// Registered threads flow into follow-ups and SLA alerts
// =========================================================================

func TestIntegration_FollowUpsAndAlerts(t *testing.T) {
	app := newWorkspaceApp(t)
	ctx := context.Background()

	created := time.Now().UTC().Add(-30 * time.Hour)
	report := models.Report{ID: "crit-1", Subject: "Account takeover via password reset", From: "c@example.com"}
	if _, err := core.RegisterThread(app.Threads, "crit-1", report, created); err != nil {
		t.Fatal(err)
	}

	alerts, err := app.AlertEngine.Evaluate()
	if err != nil {
		t.Fatal(err)
	}
	conditions := map[string]int{}
	for _, a := range alerts {
		conditions[a.Condition]++
	}
	if conditions["sla_breached"] != 1 {
		t.Errorf("expected an SLA breach for a 30h old critical report, got %v", alerts)
	}
	if conditions["followup_stalled"] == 0 {
		t.Errorf("expected stalled follow-ups before the scheduler ran, got %v", alerts)
	}

	sched := core.NewScheduler(core.SchedulerConfig{Threads: app.Threads, Events: app.Events})
	res, err := sched.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Recorded != 2 {
		t.Errorf("recorded %d steps, want 2 (4h and 24h)", res.Recorded)
	}

	alerts, err = app.AlertEngine.Evaluate()
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range alerts {
		if a.Condition == "followup_stalled" {
			t.Errorf("stalled alert should clear after the scheduler ran: %+v", a)
		}
	}

	events, err := app.EventLog.Read(observability.EventFilter{Type: "followup.recorded"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("got %d followup.recorded events, want 2", len(events))
	}
}
