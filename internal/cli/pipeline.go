package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/integration"
)

var (
	errConfigNotLoaded   = errors.New("configuration not loaded")
	errThreadsNotReady   = errors.New("follow-up store not initialized")
	errArtifactsNotReady = errors.New("artifact store not initialized")
)

func requireConfig() error {
	if Cfg == nil {
		return errConfigNotLoaded
	}
	return nil
}

// commandContext returns the command's context cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newRouter builds a router over the configured inbox. When register is set
// every routed report also gets a follow-up thread.
func newRouter(register bool) (*core.Router, error) {
	if err := requireConfig(); err != nil {
		return nil, err
	}
	if Artifacts == nil {
		return nil, errArtifactsNotReady
	}
	channels, err := core.LoadChannelMap(Cfg.Paths.Channels)
	if err != nil {
		return nil, fmt.Errorf("loading channel map: %w", err)
	}

	rc := core.RouterConfig{
		Inbox:     integration.NewInbox(Cfg.Paths.Inbox),
		Artifacts: Artifacts,
		Channels:  channels,
		Logger:    logger,
		Events:    Events,
	}
	if register {
		if Threads == nil {
			return nil, errThreadsNotReady
		}
		rc.Threads = Threads
	}
	return core.NewRouter(rc), nil
}

// newScheduler builds a scheduler. With send unset, due steps are recorded
// without selecting a transport.
func newScheduler(ctx context.Context, send bool) (*core.Scheduler, error) {
	if err := requireConfig(); err != nil {
		return nil, err
	}
	if Threads == nil {
		return nil, errThreadsNotReady
	}

	var mailer core.Mailer = integration.NullMailer{}
	if send {
		mailer = integration.NewMailer(ctx, Cfg.Mail, logger)
		if mailer.Name() == integration.ProviderNone {
			logger.Warn("sending requested but no mail transport is available, steps will only be recorded")
		}
	}
	return core.NewScheduler(core.SchedulerConfig{
		Threads: Threads,
		Mailer:  mailer,
		Send:    send,
		Logger:  logger,
		Events:  Events,
	}), nil
}

// newPublisher builds a publisher against GitHub. In dry-run mode writes are
// only logged, and reads hit GitHub only when a repository is configured.
func newPublisher(dryRun bool) (*core.Publisher, *integration.DryRunTracker, error) {
	if err := requireConfig(); err != nil {
		return nil, nil, err
	}
	if Artifacts == nil {
		return nil, nil, errArtifactsNotReady
	}
	owners, err := core.LoadOwners(Cfg.Paths.Owners)
	if err != nil {
		return nil, nil, fmt.Errorf("loading owners: %w", err)
	}
	resolved, err := core.LoadResolved(Cfg.Paths.Resolved)
	if err != nil {
		return nil, nil, fmt.Errorf("loading resolved list: %w", err)
	}

	var (
		tracker core.IssueTracker
		dry     *integration.DryRunTracker
	)
	gh, err := integration.NewGitHubTracker(Cfg.Publisher, nil, logger)
	switch {
	case err == nil && !dryRun:
		tracker = gh
	case err == nil:
		dry = integration.NewDryRunTracker(gh, logger)
		tracker = dry
	case dryRun && errors.Is(err, core.ErrNoRepository):
		dry = integration.NewDryRunTracker(nil, logger)
		tracker = dry
	default:
		return nil, nil, err
	}
	if gh != nil {
		logger.Debug("publishing to github", zap.String("repo", gh.Repo()), zap.Bool("dry_run", dryRun))
	}

	return core.NewPublisher(core.PublisherConfig{
		Tracker:   tracker,
		Artifacts: Artifacts,
		Owners:    owners,
		Resolved:  resolved,
		Logger:    logger,
		Events:    Events,
	}), dry, nil
}

// writeTextfile exports run metrics when a textfile path is configured.
func writeTextfile() {
	if RunMetrics == nil || Cfg == nil || Cfg.Textfile == "" {
		return
	}
	if err := RunMetrics.WriteTextfile(Cfg.Textfile); err != nil {
		logger.Warn("writing metrics textfile", zap.String("path", Cfg.Textfile), zap.Error(err))
	}
}
