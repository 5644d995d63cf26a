package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/voicetally/internal/usage"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage USER_ID [month]",
	Short: "Print a user's recorded voice usage",
	Long:  `Print every month recorded for a user, or a single month (YYYYMM or YYYY-MM).`,
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadForCLI()
	if err != nil {
		return err
	}

	userID := args[0]
	month := ""
	if len(args) == 2 {
		if month, err = usage.ParseMonth(args[1]); err != nil {
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

	query := usage.NewQuery(store.Usage())
	if month != "" {
		seconds, err := query.TotalFor(ctx, userID, month)
		if err != nil {
			return err
		}
		printTotals(os.Stdout, userID, map[string]int64{month: seconds})
		return nil
	}

	totals, err := query.AllTotals(ctx, userID)
	if err != nil {
		return err
	}
	printTotals(os.Stdout, userID, totals)
	return nil
}

func printTotals(w io.Writer, userID string, totals map[string]int64) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	_, _ = cyan.Fprintf(w, "Voice usage for %s\n", userID)
	if len(totals) == 0 {
		_, _ = yellow.Fprintln(w, "no usage recorded")
		return
	}

	months := make([]string, 0, len(totals))
	for month := range totals {
		months = append(months, month)
	}
	sort.Strings(months)

	for _, month := range months {
		_, _ = fmt.Fprintf(w, "  %s  ", month)
		_, _ = green.Fprintf(w, "%-12s", usage.FormatDuration(totals[month]))
		_, _ = fmt.Fprintf(w, " (%s h)\n", usage.FormatHours(totals[month]))
	}
}
