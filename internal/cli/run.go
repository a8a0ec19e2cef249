package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/adhocore/gronx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/sectriage/internal/core"
)

var (
	runCron   string
	runSend   bool
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run route, followup and publish in sequence",
	Long: `Run one full pipeline pass: route the inbox (registering a follow-up
thread per report), record and send due follow-ups, then publish issues.
Publishing is skipped when no repository is configured.

With --cron (or cron in .sectriage.yaml) the pass repeats on the schedule.
Passes never overlap; a tick that arrives during a pass is skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		ctx, stop := commandContext(cmd)
		defer stop()
		out := cmd.OutOrStdout()

		expr := runCron
		if expr == "" {
			expr = Cfg.Cron
		}
		if expr == "" {
			return runPipeline(ctx, out)
		}
		return runScheduled(ctx, expr, out)
	},
}

// runPipeline performs one pass. A failing stage is logged and the later
// stages still run; the first error is returned.
func runPipeline(ctx context.Context, out io.Writer) error {
	var errs []error

	router, err := newRouter(true)
	if err == nil {
		err = routeOnce(ctx, router, out)
	}
	if err != nil {
		logger.Error("route stage failed", zap.Error(err))
		errs = append(errs, err)
	}

	sched, err := newScheduler(ctx, runSend || Cfg.Mail.Send)
	if err == nil {
		start := time.Now()
		var res *core.FollowUpResult
		res, err = sched.Run(ctx)
		RunMetrics.ObserveFollowUp(res, time.Since(start))
		writeTextfile()
		if err == nil {
			err = printJSON(out, res)
		}
	}
	if err != nil {
		logger.Error("followup stage failed", zap.Error(err))
		errs = append(errs, err)
	}

	if err := publishOnce(ctx, runDryRun, out); err != nil {
		if errors.Is(err, core.ErrNoRepository) {
			logger.Info("no repository configured, skipping publish")
		} else {
			logger.Error("publish stage failed", zap.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// runScheduled runs the pipeline on every cron tick until ctx is cancelled.
func runScheduled(ctx context.Context, expr string, out io.Writer) error {
	if !gronx.IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q", expr)
	}
	logger.Info("pipeline scheduled", zap.String("cron", expr))

	for {
		next, err := gronx.NextTickAfter(expr, time.Now(), false)
		if err != nil {
			return fmt.Errorf("computing next tick for %q: %w", expr, err)
		}
		logger.Debug("waiting for next tick", zap.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if err := runPipeline(ctx, out); err != nil {
			logger.Warn("pipeline pass finished with errors", zap.Error(err))
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runCron, "cron", "", "cron expression; repeat the pass on this schedule")
	runCmd.Flags().BoolVar(&runSend, "send", false, "dispatch due follow-ups")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log tracker writes instead of performing them")
	rootCmd.AddCommand(runCmd)
}
