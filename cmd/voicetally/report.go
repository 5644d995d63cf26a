package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/voicetally/internal/config"
	"github.com/goodtune/voicetally/internal/usage"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [month]",
	Short: "Print the usage leaderboard for a month",
	Long:  `Print the usage leaderboard for a month (YYYYMM or YYYY-MM). Defaults to the current month in the tracking time zone.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, loc, err := loadForCLI()
	if err != nil {
		return err
	}

	month := usage.MonthKey(time.Now(), loc)
	if len(args) == 1 {
		if month, err = usage.ParseMonth(args[0]); err != nil {
			return err
		}
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	generator := usage.NewGenerator(store.Usage(), newLogger(cfg.Logging, os.Stderr))
	report, err := generator.Generate(ctx, month)
	if err != nil {
		return err
	}

	printReport(os.Stdout, report)
	return nil
}

func printReport(w io.Writer, report *usage.Report) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)
	bold := color.New(color.Bold)

	_, _ = cyan.Fprintf(w, "Voice usage for %s\n", report.Month)

	if report.Empty() {
		_, _ = yellow.Fprintln(w, usage.NoUsageMessage)
		return
	}

	for i, e := range report.Entries {
		_, _ = fmt.Fprintf(w, "%3d. ", i+1)
		_, _ = bold.Fprintf(w, "%-24s", e.DisplayName)
		_, _ = green.Fprintf(w, " %s\n", usage.FormatDuration(e.Seconds))
	}
	_, _ = yellow.Fprintf(w, "Total: %s\n", usage.FormatDuration(report.TotalSeconds))
}

// loadForCLI loads configuration for one-shot subcommands.
func loadForCLI() (*config.Config, *time.Location, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	loc, err := cfg.Tracking.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid tracking timezone: %w", err)
	}
	return cfg, loc, nil
}
