package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/activityd/internal/storage"
	"github.com/goodtune/activityd/internal/usage"
	"github.com/spf13/cobra"
)

var (
	historyCategory string
	historySince    time.Duration
	historyLimit    int
	historyAllUsers bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded activity",
	Long:  `List recorded usage spans, newest first, with per-category totals.`,
	Example: `  activityd history --since 24h
  activityd history --category idle --limit 20`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyCategory, "category", "", "Only show this category (login, focus, idle, locked, remote)")
	historyCmd.Flags().DurationVar(&historySince, "since", 7*24*time.Hour, "How far back to look")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of records to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyAllUsers, "all-users", false, "Show records for every user")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	filter := storage.UsageFilter{Limit: historyLimit}
	if !historyAllUsers {
		filter.UserID = cfg.Tracking.UserID
	}
	if historyCategory != "" {
		category, err := usage.ParseCategory(historyCategory)
		if err != nil {
			return err
		}
		filter.Category = category
	}
	if historySince > 0 {
		since := time.Now().Add(-historySince)
		filter.StartTime = &since
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := store.Usage().List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list usage: %w", err)
	}

	printHistory(records, time.Now())
	return nil
}

var categoryColors = map[usage.Category]*color.Color{
	usage.CategoryLogin:  color.New(color.FgCyan),
	usage.CategoryFocus:  color.New(color.FgGreen),
	usage.CategoryIdle:   color.New(color.FgYellow),
	usage.CategoryLocked: color.New(color.FgMagenta),
	usage.CategoryRemote: color.New(color.FgBlue),
}

func printHistory(records []usage.Record, now time.Time) {
	bold := color.New(color.Bold)

	if len(records) == 0 {
		fmt.Println("No activity recorded")
		return
	}

	bold.Printf("%-20s %-8s %-10s %s\n", "START", "CATEGORY", "DURATION", "STATE")

	totals := make(map[usage.Category]time.Duration)
	for i := range records {
		record := &records[i]
		d := record.Duration(now)
		totals[record.Category] += d

		state := "closed"
		if record.Current {
			state = color.GreenString("open")
		}

		c, ok := categoryColors[record.Category]
		if !ok {
			c = color.New(color.Reset)
		}

		fmt.Printf("%-20s %s %-10s %s\n",
			record.Start.Local().Format("2006-01-02 15:04:05"),
			c.Sprintf("%-8s", record.Category),
			d.Round(time.Second),
			state,
		)
	}

	fmt.Println()
	bold.Println("TOTALS")
	for _, category := range usage.Categories() {
		if total, ok := totals[category]; ok {
			fmt.Printf("  %s %s\n", categoryColors[category].Sprintf("%-8s", category), total.Round(time.Second))
		}
	}
}
