// Package main implements the relay CLI: an interactive migration assistant
// that coordinates an LLM agent across several project codebases.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default config file location
	configPath string
	// logLevel overrides logging.level from the config
	logLevel string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Migration assistant driving an LLM agent across codebases",
	Long: `relay runs a conversational agent that reads and writes files across the
configured projects, tracks the agreed task context and records every exchange
in a local journal.

Without a subcommand it starts an interactive chat session.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/relay/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
