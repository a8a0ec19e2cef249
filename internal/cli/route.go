package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/integration"
)

var (
	routeWatch    bool
	routeRegister bool
	routeDebounce time.Duration
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route inbox reports into channel artifact trees",
	Long: `Read every report in the inbox, classify it, and write it to
<pipelines>/<channel>[/<category>]/<date>/<id>.json for every matching channel.
Reports matching no channel go to unclassified.

A JSON summary is printed to stdout. Malformed inbox files are skipped and
listed in the summary.

--watch keeps running and routes again whenever the inbox changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		router, err := newRouter(routeRegister)
		if err != nil {
			return err
		}
		ctx, stop := commandContext(cmd)
		defer stop()

		out := cmd.OutOrStdout()
		if err := routeOnce(ctx, router, out); err != nil {
			return err
		}
		if !routeWatch {
			return nil
		}

		w := integration.NewInboxWatcher(Cfg.Paths.Inbox, routeDebounce, logger)
		return w.Watch(ctx, func(ctx context.Context) error {
			return routeOnce(ctx, router, out)
		})
	},
}

func routeOnce(ctx context.Context, router *core.Router, out io.Writer) error {
	start := time.Now()
	res, err := router.Run(ctx)
	RunMetrics.ObserveRoute(res, time.Since(start))
	writeTextfile()
	if err != nil {
		return fmt.Errorf("routing inbox: %w", err)
	}
	logger.Info("route pass complete",
		zap.Int("processed", res.Processed),
		zap.Int("artifacts", res.Artifacts),
		zap.Int("skipped", len(res.Skipped)))
	return printJSON(out, res)
}

func init() {
	routeCmd.Flags().BoolVar(&routeWatch, "watch", false, "re-route whenever the inbox changes")
	routeCmd.Flags().BoolVar(&routeRegister, "register", false, "register a follow-up thread for every routed report")
	routeCmd.Flags().DurationVar(&routeDebounce, "debounce", integration.DefaultDebounce, "quiet period before a watched change is routed")
	rootCmd.AddCommand(routeCmd)
}
