package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/integration"
)

var (
	replyRegister bool
	replySend     bool
	replyPayload  string
)

type replyOutput struct {
	ID string `json:"id"`
	core.AutoReply
	Registered bool   `json:"registered"`
	Sent       bool   `json:"sent"`
	Transport  string `json:"transport,omitempty"`
}

var replyCmd = &cobra.Command{
	Use:   "reply <report.json>",
	Short: "Compose the acknowledgement for a report",
	Long: `Run the auto-responder on one report file and print the computed reply,
severity, SLA, categories and follow-up plan as JSON.

--payload ses|gmail prints the transport request instead: the SES
SendEmail input or the Gmail raw MIME body.
--register adds the report to the follow-up store.
--send dispatches the initial reply through the configured transport.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		item, err := integration.ReadReportFile(args[0])
		if err != nil {
			return err
		}

		id := core.ReportID(item.Report, item.Raw)
		ar := core.NewAutoResponder(Cfg.Mail.EscalationCC).Reply(item.Report)
		out := cmd.OutOrStdout()

		switch replyPayload {
		case "":
		case integration.ProviderSES:
			in, err := integration.BuildSESParams(Cfg.Mail.From, ar.InitialReply)
			if err != nil {
				return fmt.Errorf("building ses payload: %w", err)
			}
			return printJSON(out, in)
		case integration.ProviderGmail:
			raw, err := integration.BuildRawMIME(Cfg.Mail.From, ar.InitialReply)
			if err != nil {
				return fmt.Errorf("building gmail payload: %w", err)
			}
			return printJSON(out, map[string]string{"raw": raw})
		default:
			return fmt.Errorf("unknown payload %q: use ses or gmail", replyPayload)
		}

		result := replyOutput{ID: id, AutoReply: ar}

		if replyRegister {
			if Threads == nil {
				return errThreadsNotReady
			}
			added, err := core.RegisterThread(Threads, id, item.Report, time.Now())
			if err != nil {
				return fmt.Errorf("registering thread: %w", err)
			}
			result.Registered = added
			if added && Events != nil {
				_ = Events.LogEvent("thread.registered", map[string]any{"count": 1, "id": id})
			}
		}

		if replySend {
			ctx, stop := commandContext(cmd)
			defer stop()
			mailer := integration.NewMailer(ctx, Cfg.Mail, logger)
			result.Transport = mailer.Name()
			if mailer.Name() == integration.ProviderNone {
				logger.Warn("no mail transport configured, initial reply not sent")
			} else if err := mailer.Send(ctx, ar.InitialReply); err != nil {
				return fmt.Errorf("sending initial reply via %s: %w", mailer.Name(), err)
			} else {
				result.Sent = true
				logger.Info("initial reply sent", zap.String("id", id), zap.String("transport", mailer.Name()))
			}
		}

		return printJSON(out, result)
	},
}

func init() {
	replyCmd.Flags().BoolVar(&replyRegister, "register", false, "register the report for follow-ups")
	replyCmd.Flags().BoolVar(&replySend, "send", false, "send the initial reply")
	replyCmd.Flags().StringVar(&replyPayload, "payload", "", "print the transport payload (ses or gmail) instead of the reply")
	rootCmd.AddCommand(replyCmd)
}
