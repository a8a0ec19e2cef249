package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/sectriage/internal/observability"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var (
	logLevelFlag string
	jsonLogsFlag bool

	// logger is replaced in PersistentPreRunE. Commands invoked directly
	// through RunE in tests keep the no-op logger.
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "sectriage",
	Short: "Security inbox triage pipeline",
	Long: `sectriage triages inbound security reports: it classifies severity,
composes acknowledgement replies, routes reports into per-channel artifact
trees, sends severity-based follow-ups, and mirrors routed reports into
GitHub issues.

Each stage is a separate command so it can run from cron or CI. The run
command chains route, followup and publish.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevelFlag
		if level == "" && Cfg != nil {
			level = Cfg.LogLevel
		}
		l, err := observability.NewLogger(level, jsonLogsFlag)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sectriage %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error); overrides log_level")
	rootCmd.PersistentFlags().BoolVar(&jsonLogsFlag, "json-logs", false, "emit logs as JSON")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
