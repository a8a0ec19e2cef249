package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display triage pipeline metrics",
	Long: `Display counts derived from the event log: reports routed and skipped,
reports by severity, follow-ups recorded, sent and failed, and issues created,
closed and failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized")
		}

		sinceTime, err := parseSinceDuration(metricsSince, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			return printJSON(out, metrics)
		}

		fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		rows := []struct {
			label string
			value int
		}{
			{"Events recorded:", metrics.EventCount},
			{"Reports routed:", metrics.ReportsRouted},
			{"Reports skipped:", metrics.ReportsSkipped},
			{"Artifacts written:", metrics.ArtifactsWritten},
			{"Threads registered:", metrics.ThreadsRegistered},
			{"Follow-ups recorded:", metrics.FollowUpsRecorded},
			{"Follow-ups sent:", metrics.FollowUpsSent},
			{"Follow-ups failed:", metrics.FollowUpsFailed},
			{"Issues created:", metrics.IssuesCreated},
			{"Issues existing:", metrics.IssuesExisting},
			{"Issues closed:", metrics.IssuesClosed},
			{"Issues failed:", metrics.IssuesFailed},
		}
		for _, r := range rows {
			fmt.Fprintf(out, "  %-24s %d\n", r.label, r.value)
		}

		if len(metrics.ReportsBySeverity) > 0 {
			fmt.Fprintln(out, "\n  Reports by severity:")
			for _, sev := range models.Severities() {
				if n := metrics.ReportsBySeverity[string(sev)]; n > 0 {
					fmt.Fprintf(out, "    %-20s %d\n", string(sev)+":", n)
				}
			}
		}

		if len(metrics.IssuesByChannel) > 0 {
			fmt.Fprintln(out, "\n  Issues by channel:")
			channels := make([]string, 0, len(metrics.IssuesByChannel))
			for ch := range metrics.IssuesByChannel {
				channels = append(channels, ch)
			}
			sort.Strings(channels)
			for _, ch := range channels {
				fmt.Fprintf(out, "    %-20s %d\n", ch+":", metrics.IssuesByChannel[ch])
			}
		}

		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

// parseSinceDuration parses a duration like "7d", "30d" or "24h" and returns
// that far before now.
func parseSinceDuration(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days < 0 {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil || hours < 0 {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
