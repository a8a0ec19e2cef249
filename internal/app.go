// Package internal provides the App struct that wires the components of the
// sectriage pipeline together and initializes the CLI layer.
package internal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/sectriage/internal/cli"
	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/observability"
	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// BaseDirName is the workspace directory ResolveBasePath looks for.
const BaseDirName = ".security"

// App holds all service dependencies for sectriage.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.Config

	// Storage layer
	Threads   storage.ThreadRepository
	Artifacts *storage.ArtifactStore

	// Observability
	EventLog    observability.EventLog
	Events      core.EventLogger
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
	Notifier    observability.Notifier
	RunMetrics  *observability.RunMetrics

	closers []io.Closer
}

// NewApp loads configuration from basePath, opens the follow-up store and
// event log, and sets the CLI package variables.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	switch cfg.Store.Backend {
	case "pebble":
		ps, err := storage.OpenPebbleThreadStore(cfg.Store.PebblePath)
		if err != nil {
			return nil, err
		}
		app.Threads = ps
		app.closers = append(app.closers, ps)
	default:
		app.Threads = storage.NewJSONThreadStore(cfg.Paths.FollowUps)
	}
	app.Artifacts = storage.NewArtifactStore(cfg.Paths.Pipelines)

	// Only opened inside an initialized workspace.
	if dirExists(filepath.Dir(cfg.Paths.EventLog)) {
		eventLog, err := observability.NewJSONLEventLog(cfg.Paths.EventLog)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("opening event log: %w", err)
		}
		app.EventLog = eventLog
		app.Events = observability.NewRecorder(eventLog)
		app.MetricsCalc = observability.NewMetricsCalculator(eventLog)
		app.closers = append(app.closers, eventLog)
	}

	thresholds := observability.DefaultAlertThresholds()
	if cfg.Alerts.GraceHours > 0 {
		thresholds.GraceHours = cfg.Alerts.GraceHours
	}
	app.AlertEngine = observability.NewAlertEngine(app.Threads, app.EventLog, thresholds)
	if cfg.Alerts.SlackWebhook != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Alerts.SlackWebhook)
	}
	app.RunMetrics = observability.NewRunMetrics()

	cli.BasePath = basePath
	cli.Cfg = cfg
	cli.Threads = app.Threads
	cli.Artifacts = app.Artifacts
	cli.Events = app.Events
	cli.EventLog = app.EventLog
	cli.MetricsCalc = app.MetricsCalc
	cli.AlertEngine = app.AlertEngine
	cli.Notifier = app.Notifier
	cli.RunMetrics = app.RunMetrics

	return app, nil
}

// Close releases the event log file handle and the pebble database, if open.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ResolveBasePath determines the workspace root. SECTRIAGE_HOME wins;
// otherwise the current directory tree is walked up to the first directory
// holding .security/ or .sectriage.yaml. It falls back to the current
// directory.
func ResolveBasePath() string {
	if home := os.Getenv("SECTRIAGE_HOME"); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if dirExists(filepath.Join(dir, BaseDirName)) {
			return dir
		}
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
