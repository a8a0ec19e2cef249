package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold the .security workspace",
	Long: `Create the inbox and pipelines directories and write default
channels.json, owners.json, resolved.json and .sectriage.yaml files.

Existing files are left untouched unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		for _, dir := range []string{Cfg.Paths.Inbox, Cfg.Paths.Pipelines} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
			fmt.Fprintf(out, "  dir   %s\n", dir)
		}

		cfgYAML, err := yaml.Marshal(core.DefaultConfig())
		if err != nil {
			return fmt.Errorf("marshaling default config: %w", err)
		}

		files := []struct {
			path string
			data func() ([]byte, error)
		}{
			{Cfg.Paths.Channels, jsonFile(core.DefaultChannelMap())},
			{Cfg.Paths.Owners, jsonFile(core.DefaultOwners())},
			{Cfg.Paths.Resolved, jsonFile(models.ResolvedConfig{Files: []string{}, IDs: []string{}})},
			{filepath.Join(BasePath, core.ConfigFileName+".yaml"), func() ([]byte, error) { return cfgYAML, nil }},
		}
		for _, f := range files {
			wrote, err := writeIfAbsent(f.path, f.data, initForce)
			if err != nil {
				return err
			}
			state := "kept"
			if wrote {
				state = "wrote"
			}
			fmt.Fprintf(out, "  %-5s %s\n", state, f.path)
		}
		return nil
	},
}

func jsonFile(v any) func() ([]byte, error) {
	return func() ([]byte, error) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

func writeIfAbsent(path string, data func() ([]byte, error), force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("checking %s: %w", path, err)
		}
	}
	content, err := data()
	if err != nil {
		return false, fmt.Errorf("rendering %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
