package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/sectriage/internal/core"
)

var publishDryRun bool

type publishOutput struct {
	*core.PublishResult
	DryRun  bool     `json:"dryRun"`
	Actions []string `json:"actions,omitempty"`
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Mirror routed artifacts into GitHub issues",
	Long: `Create one issue per routed artifact that has none yet, then comment on
and close issues whose artifact was deleted, marked resolved, or listed in
resolved.json.

The repository comes from publisher.repo or GITHUB_REPOSITORY; without one
the command fails. --dry-run logs the writes it would make instead.

The command exits non-zero if any artifact or issue failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()
		return publishOnce(ctx, publishDryRun, cmd.OutOrStdout())
	},
}

func publishOnce(ctx context.Context, dryRun bool, out io.Writer) error {
	pub, dry, err := newPublisher(dryRun)
	if err != nil {
		return fmt.Errorf("publishing issues: %w", err)
	}

	start := time.Now()
	res, err := pub.Run(ctx)
	RunMetrics.ObservePublish(res, time.Since(start))
	writeTextfile()
	if err != nil {
		return fmt.Errorf("publishing issues: %w", err)
	}
	logger.Info("publish pass complete",
		zap.Int("processed", res.Processed),
		zap.Int("created", res.Created),
		zap.Int("existing", res.Existing),
		zap.Int("closed", res.Closed),
		zap.Int("failed", res.Failed))

	output := publishOutput{PublishResult: res, DryRun: dryRun}
	if dry != nil {
		output.Actions = dry.Actions()
	}
	if err := printJSON(out, output); err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("publishing issues: %d failure(s)", res.Failed)
	}
	return nil
}

func init() {
	publishCmd.Flags().BoolVar(&publishDryRun, "dry-run", false, "log tracker writes instead of performing them")
	rootCmd.AddCommand(publishCmd)
}
