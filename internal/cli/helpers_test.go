package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/observability"
	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// envOverrides are cleared so a developer's or CI runner's environment does
// not leak into the workspace config.
var envOverrides = []string{
	"GITHUB_REPOSITORY", "GITHUB_TOKEN", "GITHUB_API_URL", "SECURITY_SEND",
	"SECURITY_EMAIL_PROVIDER", "SECURITY_ESCALATION_CC", "SLACK_WEBHOOK_URL",
	"SECTRIAGE_CRON", "SECTRIAGE_STORE", "SECTRIAGE_METRICS_TEXTFILE",
}

// testWorkspace points the CLI package variables at a fresh workspace and
// restores them when the test ends.
func testWorkspace(t *testing.T) *models.Config {
	t.Helper()
	for _, env := range envOverrides {
		t.Setenv(env, "")
	}

	origBase, origCfg, origThreads, origArtifacts, origEvents := BasePath, Cfg, Threads, Artifacts, Events
	origLog, origAlerts, origMetrics, origNotifier, origRun := EventLog, AlertEngine, MetricsCalc, Notifier, RunMetrics
	t.Cleanup(func() {
		BasePath, Cfg, Threads, Artifacts, Events = origBase, origCfg, origThreads, origArtifacts, origEvents
		EventLog, AlertEngine, MetricsCalc, Notifier, RunMetrics = origLog, origAlerts, origMetrics, origNotifier, origRun
		resetFlags()
	})
	resetFlags()

	dir := t.TempDir()
	cfg, err := core.NewConfigurationManager(dir).Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.EventLog), 0o755); err != nil {
		t.Fatal(err)
	}
	eventLog, err := observability.NewJSONLEventLog(cfg.Paths.EventLog)
	if err != nil {
		t.Fatalf("opening event log: %v", err)
	}
	t.Cleanup(func() { _ = eventLog.Close() })

	BasePath = dir
	Cfg = cfg
	Threads = storage.NewJSONThreadStore(cfg.Paths.FollowUps)
	Artifacts = storage.NewArtifactStore(cfg.Paths.Pipelines)
	EventLog = eventLog
	Events = observability.NewRecorder(eventLog)
	MetricsCalc = observability.NewMetricsCalculator(eventLog)
	AlertEngine = observability.NewAlertEngine(Threads, eventLog, observability.DefaultAlertThresholds())
	Notifier = nil
	RunMetrics = observability.NewRunMetrics()
	return cfg
}

func resetFlags() {
	logLevelFlag, jsonLogsFlag = "", false
	initForce = false
	classifyFile, classifyJSON = "", false
	replyRegister, replySend, replyPayload = false, false, ""
	routeWatch, routeRegister = false, false
	followupSend, followupOutput = false, "table"
	publishDryRun = false
	runCron, runSend, runDryRun = "", false, false
	alertsNotify = false
	metricsJSON, metricsSince = false, "7d"
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetFlags()
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

// writeInbox writes a report file into the workspace inbox.
func writeInbox(t *testing.T, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(Cfg.Paths.Inbox, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(Cfg.Paths.Inbox, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
