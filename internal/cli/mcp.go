package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/sectriage/internal/core"
	secmcp "github.com/valter-silva-au/sectriage/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the sectriage MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sectriage MCP server on stdio",
	Long: `Start the sectriage MCP server on stdio transport.

The server exposes read-only triage tools that AI assistants can call:
classify_report, auto_reply, list_threads, due_followups, get_metrics and
get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}

		deps := secmcp.Deps{
			Responder: core.NewAutoResponder(Cfg.Mail.EscalationCC),
			Threads:   Threads,
			Metrics:   MetricsCalc,
			Alerts:    AlertEngine,
		}
		if Threads != nil {
			sched, err := newScheduler(cmd.Context(), false)
			if err != nil {
				return err
			}
			deps.Scheduler = sched
		}

		ctx, stop := commandContext(cmd)
		defer stop()

		if err := secmcp.NewServer(deps, appVersion).Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
