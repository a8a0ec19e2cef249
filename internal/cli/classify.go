package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/integration"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

var (
	classifyFile string
	classifyJSON bool
)

type classification struct {
	ID         string            `json:"id,omitempty"`
	Severity   models.Severity   `json:"severity"`
	SLAHours   int               `json:"slaHours"`
	Escalate   bool              `json:"escalate"`
	Categories models.Categories `json:"categories"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Classify the severity and categories of a report",
	Long: `Classify a report without sending or storing anything.

The report is either the free text given as arguments or a report JSON file
given with --file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			report models.Report
			id     string
		)
		switch {
		case classifyFile != "":
			item, err := integration.ReadReportFile(classifyFile)
			if err != nil {
				return err
			}
			report = item.Report
			id = core.ReportID(item.Report, item.Raw)
		case len(args) > 0:
			report = models.Report{Subject: strings.Join(args, " ")}
		default:
			return fmt.Errorf("provide report text or --file")
		}

		sev := core.Classify(report.Text())
		c := classification{
			ID:         id,
			Severity:   sev,
			SLAHours:   core.SLAHours(sev),
			Escalate:   core.Escalates(sev),
			Categories: core.DetectAll(report.Text()),
		}

		out := cmd.OutOrStdout()
		if classifyJSON {
			return printJSON(out, c)
		}
		if c.ID != "" {
			fmt.Fprintf(out, "id:        %s\n", c.ID)
		}
		fmt.Fprintf(out, "severity:  %s\n", c.Severity)
		fmt.Fprintf(out, "sla:       %dh\n", c.SLAHours)
		fmt.Fprintf(out, "escalate:  %t\n", c.Escalate)
		for _, name := range core.DetectorOrder() {
			fmt.Fprintf(out, "%-10s %s\n", name+":", c.Categories[name])
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyFile, "file", "f", "", "report JSON file")
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print JSON")
	rootCmd.AddCommand(classifyCmd)
}
