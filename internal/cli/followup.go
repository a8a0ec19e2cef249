package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/integration"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

var (
	followupSend   bool
	followupOutput string
)

var followupCmd = &cobra.Command{
	Use:   "followup",
	Short: "Severity-based follow-up commands",
}

var followupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Record and send every due follow-up step",
	Long: `Load all follow-up threads, record every step whose offset has passed,
and save the store once.

Messages are dispatched only with --send or mail.send: true. A step is
recorded before it is dispatched, so a failed send is not retried.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		ctx, stop := commandContext(cmd)
		defer stop()

		sched, err := newScheduler(ctx, followupSend || Cfg.Mail.Send)
		if err != nil {
			return err
		}

		start := time.Now()
		res, err := sched.Run(ctx)
		RunMetrics.ObserveFollowUp(res, time.Since(start))
		writeTextfile()
		if err != nil {
			return fmt.Errorf("running follow-ups: %w", err)
		}
		logger.Info("follow-up pass complete",
			zap.Int("threads", res.Threads),
			zap.Int("recorded", res.Recorded),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed))
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var followupDueCmd = &cobra.Command{
	Use:   "due",
	Short: "List follow-up steps that are due, without recording them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		sched, err := newScheduler(cmd.Context(), false)
		if err != nil {
			return err
		}
		due, err := sched.Pending()
		if err != nil {
			return err
		}
		if due == nil {
			due = []core.DueFollowUp{}
		}
		return writeFormatted(cmd.OutOrStdout(), followupOutput, due, func(w io.Writer) {
			if len(due) == 0 {
				fmt.Fprintln(w, "No follow-ups due.")
				return
			}
			for _, d := range due {
				fmt.Fprintf(w, "%-40s step %d  %-22s due %s\n", d.ThreadID, d.Step, d.Reason, d.DueAt.UTC().Format(time.RFC3339))
			}
		})
	},
}

// threadSummary is one row of `followup list`.
type threadSummary struct {
	ID        string          `json:"id" yaml:"id"`
	Severity  models.Severity `json:"severity" yaml:"severity"`
	CreatedAt string          `json:"createdAt" yaml:"created_at"`
	Subject   string          `json:"subject" yaml:"subject"`
	Sent      int             `json:"sent" yaml:"sent"`
	Planned   int             `json:"planned" yaml:"planned"`
	NextDue   string          `json:"nextDue,omitempty" yaml:"next_due,omitempty"`
}

func summarizeThread(t models.Thread) threadSummary {
	plan := core.FollowUpPlan(t.Severity)
	s := threadSummary{
		ID:        t.ID,
		Severity:  t.Severity,
		CreatedAt: t.CreatedAt,
		Subject:   t.Event.Subject,
		Sent:      len(t.FollowUpsSent),
		Planned:   len(plan),
	}
	created, err := t.Created()
	if err != nil {
		return s
	}
	for i, step := range plan {
		if !t.HasSent(i) {
			s.NextDue = created.Add(time.Duration(step.InHours) * time.Hour).UTC().Format(time.RFC3339)
			break
		}
	}
	return s
}

var followupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered follow-up threads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Threads == nil {
			return errThreadsNotReady
		}
		threads, err := Threads.Load()
		if err != nil {
			return fmt.Errorf("loading threads: %w", err)
		}
		sort.SliceStable(threads, func(i, j int) bool { return threads[i].CreatedAt < threads[j].CreatedAt })

		rows := make([]threadSummary, 0, len(threads))
		for _, t := range threads {
			rows = append(rows, summarizeThread(t))
		}
		return writeFormatted(cmd.OutOrStdout(), followupOutput, rows, func(w io.Writer) {
			if len(rows) == 0 {
				fmt.Fprintln(w, "No follow-up threads.")
				return
			}
			fmt.Fprintf(w, "%-40s %-8s %-5s %-20s %s\n", "ID", "SEVERITY", "SENT", "NEXT DUE", "SUBJECT")
			for _, r := range rows {
				next := r.NextDue
				if next == "" {
					next = "-"
				}
				fmt.Fprintf(w, "%-40s %-8s %d/%-3d %-20s %s\n", r.ID, r.Severity, r.Sent, r.Planned, next, r.Subject)
			}
		})
	},
}

var followupRegisterCmd = &cobra.Command{
	Use:   "register <report.json>...",
	Short: "Register reports for follow-ups",
	Long: `Add one follow-up thread per report file. Reports already registered
are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Threads == nil {
			return errThreadsNotReady
		}
		now := time.Now()
		threads := make([]models.Thread, 0, len(args))
		for _, path := range args {
			item, err := integration.ReadReportFile(path)
			if err != nil {
				return err
			}
			threads = append(threads, core.NewThread(core.ReportID(item.Report, item.Raw), item.Report, now))
		}
		n, err := core.RegisterThreads(Threads, threads)
		if err != nil {
			return err
		}
		if n > 0 && Events != nil {
			_ = Events.LogEvent("thread.registered", map[string]any{"count": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %d of %d report(s).\n", n, len(threads))
		return nil
	},
}

// writeFormatted renders v as json or yaml, or through table for the
// default text output.
func writeFormatted(w io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case "", "table":
		table(w)
		return nil
	case "json":
		return printJSON(w, v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q: use table, json or yaml", format)
	}
}

func init() {
	followupRunCmd.Flags().BoolVar(&followupSend, "send", false, "dispatch due messages through the configured transport")
	followupListCmd.Flags().StringVarP(&followupOutput, "output", "o", "table", "output format: table, json or yaml")
	followupDueCmd.Flags().StringVarP(&followupOutput, "output", "o", "table", "output format: table, json or yaml")

	followupCmd.AddCommand(followupRunCmd)
	followupCmd.AddCommand(followupDueCmd)
	followupCmd.AddCommand(followupListCmd)
	followupCmd.AddCommand(followupRegisterCmd)
	rootCmd.AddCommand(followupCmd)
}
