package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/phasegate/internal/history"
)

// NewHistoryCommand creates the history subcommand
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <suite>",
		Short: "Show recent runs and the trend of a suite",
		Long: `Show the most recent recorded runs of a suite and how the latest run
compares with the previous one on the same device.`,
		Args: cobra.ExactArgs(1),
		RunE: historyCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .phasegate/config.yaml)")
	cmd.Flags().String("device", "", "Only show runs on this device")
	cmd.Flags().Int("limit", 10, "Maximum runs to show")

	return cmd
}

func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in configuration")
	}

	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	device, _ := cmd.Flags().GetString("device")
	limit, _ := cmd.Flags().GetInt("limit")
	return showHistory(commandContext(cmd), cmd.OutOrStdout(), store, args[0], device, limit)
}

func showHistory(ctx context.Context, out io.Writer, store *history.Store, suiteName, device string, limit int) error {
	runs, err := store.RecentRuns(ctx, suiteName, device, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs recorded for suite %s\n", suiteName)
		return nil
	}

	fmt.Fprintf(out, "Recent runs of %s:\n", suiteName)
	for _, r := range runs {
		fmt.Fprintf(out, "  %s  %-10s %-8s %3.0f%% passed  $%.4f  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Device, strings.ToUpper(string(r.Status)),
			r.PassRate()*100, r.CostUSD, r.Summary)
	}

	trend, err := store.SuiteTrend(ctx, suiteName, device)
	if err != nil {
		return err
	}
	if trend == nil {
		fmt.Fprintf(out, "\nNot enough runs for a trend\n")
		return nil
	}

	direction := "not improving"
	if trend.Improving() {
		direction = "improving"
	}
	fmt.Fprintf(out, "\nTrend on %s (%s):\n", trend.Device, direction)
	fmt.Fprintf(out, "  Pass rate: %.0f%% (%+.0f%%)\n", trend.PassRate*100, trend.PassRateDelta*100)
	fmt.Fprintf(out, "  Cost delta: $%+.4f\n", trend.CostDelta)
	for _, name := range sortedDeltaKeys(trend.AnalyzerDelta) {
		fmt.Fprintf(out, "  %s: %+.1f\n", name, trend.AnalyzerDelta[name])
	}
	if len(trend.NewlyFailing) > 0 {
		fmt.Fprintf(out, "  Newly failing: %s\n", strings.Join(trend.NewlyFailing, ", "))
	}
	if len(trend.NewlyPassing) > 0 {
		fmt.Fprintf(out, "  Newly passing: %s\n", strings.Join(trend.NewlyPassing, ", "))
	}
	return nil
}

func sortedDeltaKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
