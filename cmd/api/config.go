package main

import (
	"fmt"
	"strings"

	"memo-web/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  "Loads the configuration the way serve does and prints it as YAML with secrets masked.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewLoader(configDir).Load(cmd.Context())
		if err != nil {
			return err
		}
		masked := *cfg
		if masked.Supabase.AnonKey != "" {
			masked.Supabase.AnonKey = "********"
		}
		out, err := yaml.Marshal(masked)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# sources: %s\n%s", strings.Join(cfg.LoadedFrom, ", "), out)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}
