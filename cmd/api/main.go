// Command api serves the memo web client over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var configDir string

var rootCmd = &cobra.Command{
	Use:   "memo-web",
	Short: "Memo web client server",
	Long: `Serves the memo web client: sign in, sign up, categories and memos
backed by a hosted Supabase project or an in-memory service.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", envOr("CONFIG_DIR", "config"), "directory holding base.yaml and <environment>.yaml")
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
