package main

import (
	"fmt"
	"os"

	"github.com/goodtune/activityd/internal/config"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "activityd",
	Short: "activityd - desktop activity tracking daemon",
	Long: `activityd records how a logged-in user spends their session. It detects
idleness from the OS idle time, watches for input to detect the return from
idle, and journals login, focus, idle, locked and remote spans to SQLite,
Redis or memory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to run command when no subcommand is provided
		return runDaemon(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to configuration file")
	config.BindFlags(rootCmd.PersistentFlags())
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "activityd.yaml"
	}
	return dir + "/activityd/activityd.yaml"
}

// loadConfig loads configuration with command-line overrides applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithFlags(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
