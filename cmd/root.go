package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/axellelanca/funnelstats/internal/config"
	"github.com/axellelanca/funnelstats/internal/logging"
)

// Cfg is the global variable that will contain the loaded configuration
// It will be accessible to all Cobra commands throughout the application
var Cfg *config.Config

// RootCmd is the base command for the CLI application
// All other commands (run-server, stats, sessions, session, track, migrate) are added as subcommands
var RootCmd = &cobra.Command{
	Use:   "funnelstats",
	Short: "Session analytics for the content-mill properties",
	Long: `funnelstats aggregates the visitor sessions and funnel events of a property
(page views, blog and related search clicks, outbound clicks, captured emails)
into per-session cards, summary tiles and click breakdowns.`,
	SilenceUsage: true,
}

// Execute is the main entry point for the Cobra application
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Configuration is loaded before any command executes.
	// Subcommands register themselves via their own init() functions.
	cobra.OnInitialize(initConfig)
}

// initConfig loads the application configuration and configures logging from it.
func initConfig() {
	var err error
	Cfg, err = config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("Problem loading configuration")
	}

	logging.Init(logging.Config{Level: Cfg.Log.Level, Format: Cfg.Log.Format})
}
