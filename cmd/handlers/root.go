package handlers

import (
	"fmt"
	"os"

	"toolvet/internal/config"
	"toolvet/internal/logger"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "toolvet",
		Short: "Toolvet vets discovered software tools for registry inclusion.",
		Long: `Toolvet takes candidate tool records produced by the Pub2Tools discovery
engine, enriches each one from its homepage and from Europe PMC, scores it
against a fixed rubric with a locally hosted Ollama model, and emits a
registry-ready payload plus per-candidate assessment reports.

Examples:
  toolvet score candidates.json
  toolvet score --limit 50 --concurrency 4 candidates.json
  toolvet cache stats`,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.toolvet.yaml)")

	rootCmd.AddCommand(NewScoreCmd())
	rootCmd.AddCommand(NewCacheCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
}
