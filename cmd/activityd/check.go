package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/activityd/internal/config"
	"github.com/goodtune/activityd/internal/platform"
	"github.com/goodtune/activityd/internal/settings"
	"github.com/goodtune/activityd/internal/storage"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and environment",
	Long: `Load the configuration, open the storage backend, read the idle threshold
and sample the OS idle time, reporting each step.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

type checkResult struct {
	name   string
	detail string
	err    error
	warn   bool
}

func runCheck(cmd *cobra.Command, args []string) error {
	var results []checkResult

	cfg, err := loadConfig(cmd)
	results = append(results, checkResult{name: "configuration", detail: configPath, err: err})
	if err != nil {
		printCheckResults(results)
		return errors.New("configuration check failed")
	}

	results = append(results, checkStorage(cfg.Storage))
	results = append(results, checkThreshold(cfg.Settings.Path))
	results = append(results, checkIdleSource())

	if printCheckResults(results) {
		return errors.New("one or more checks failed")
	}
	return nil
}

func checkStorage(cfg config.StorageConfig) checkResult {
	result := checkResult{name: "storage", detail: cfg.Type}

	store, err := openStorage(cfg)
	if err != nil {
		result.err = err
		return result
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.Usage().List(ctx, storage.UsageFilter{Limit: 1}); err != nil {
		result.err = err
	}
	return result
}

func checkThreshold(path string) checkResult {
	threshold, err := settings.NewFile(path).IdleThreshold()
	if err != nil {
		return checkResult{name: "idle threshold", detail: path, err: err}
	}
	return checkResult{name: "idle threshold", detail: fmt.Sprintf("%s (%s)", threshold, path)}
}

func checkIdleSource() checkResult {
	source := platform.NewIdleTimeSource()
	if closer, ok := source.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	idleFor, err := source.IdleDuration()
	if err != nil {
		// The daemon still runs and retries every check
		return checkResult{name: "idle time", err: err, warn: true}
	}
	return checkResult{name: "idle time", detail: idleFor.Round(time.Second).String()}
}

// printCheckResults prints every result and reports whether any failed.
func printCheckResults(results []checkResult) bool {
	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	warn := color.New(color.FgYellow, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()

	failed := false
	for _, r := range results {
		switch {
		case r.err == nil:
			fmt.Printf("%s %-15s %s\n", ok("OK  "), r.name, r.detail)
		case r.warn:
			fmt.Printf("%s %-15s %v\n", warn("WARN"), r.name, r.err)
		default:
			failed = true
			fmt.Printf("%s %-15s %v\n", fail("FAIL"), r.name, r.err)
		}
	}
	return failed
}
