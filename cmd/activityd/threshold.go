package main

import (
	"fmt"
	"time"

	"github.com/goodtune/activityd/internal/settings"
	"github.com/spf13/cobra"
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold [DURATION]",
	Short: "Show or set the idle threshold",
	Long: `Without an argument, print the idle threshold from the settings file.
With a duration, write it. A running daemon picks the new value up on its next check.`,
	Example: `  activityd threshold
  activityd threshold 10m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runThreshold,
}

func init() {
	rootCmd.AddCommand(thresholdCmd)
}

func runThreshold(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	file := settings.NewFile(cfg.Settings.Path)

	if len(args) == 0 {
		threshold, err := file.IdleThreshold()
		if err != nil {
			return err
		}
		fmt.Println(threshold)
		return nil
	}

	threshold, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", args[0], err)
	}
	if err := file.SaveIdleThreshold(threshold); err != nil {
		return err
	}

	fmt.Printf("Idle threshold set to %s in %s\n", threshold, file.Path())
	return nil
}
