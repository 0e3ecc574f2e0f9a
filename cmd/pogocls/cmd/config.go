package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/pogocls/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pogocls configuration",
		Long: `Create, inspect and locate pogocls configuration files.

Configuration is resolved from (highest precedence first): command-line flags,
POGOCLS_* environment variables, the config file and built-in defaults.`,
	}

	initCmd := &cobra.Command{
		Use:          "init [file]",
		Short:        "Write a configuration file with default values",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				filename = args[0]
			}

			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(filename); err == nil && !force {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", filename)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := config.GenerateDefaultConfigFile(filename); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", filename)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:          "show",
		Short:        "Print the resolved configuration as YAML",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := GetConfig()
			if err != nil {
				return err
			}
			out, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "List the configuration search paths",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, p := range config.GetConfigSearchPaths() {
				_, _ = fmt.Fprintln(out, p)
			}
			if used := GetConfigLoader().GetConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(out, "\nIn use: %s\n", used)
			}
		},
	}

	configCmd.AddCommand(initCmd, showCmd, pathsCmd)
	return configCmd
}
