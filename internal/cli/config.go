package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, .sectriage.yaml and environment
overrides are applied. Tokens and webhook URLs are never printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		data, err := yaml.Marshal(Cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# base path: %s\n", BasePath)
		_, err = out.Write(data)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
