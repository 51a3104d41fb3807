package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for phasegate
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phasegate",
		Short: "Phase execution and decision aggregation engine",
		Long: `Phasegate runs scripted UI test suites phase by phase, judges every
rendered page with automated analyzers and an optional vision model,
and reconciles their signals into one pass/fail decision per phase.

Suites are YAML files. Phases run in dependency order; a phase whose
dependencies did not pass is skipped. Results are rolled up per suite
and device, written as JSON reports, and recorded for trend analysis.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
