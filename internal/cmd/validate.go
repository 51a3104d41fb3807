package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/phasegate/internal/executor"
	"github.com/harrison/phasegate/internal/parser"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <suite-file-or-directory>...",
		Short: "Validate one or more suite files or directories",
		Long: `Parse and validate suite files, checking for:
  - Phase validation (ids, names, steps)
  - Step fields required by each action
  - Duplicate phase ids
  - Dependencies that point to unknown phases
  - Circular dependencies
  - Checklist patterns that are not valid regular expressions

Directories are scanned recursively for .yaml and .yml files.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateSuites(args, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

// validateSuites validates every suite file and reports each result.
// Every file is checked even after a failure.
func validateSuites(paths []string, output io.Writer) error {
	files, err := parser.FilterSuiteFiles(paths)
	if err != nil {
		return err
	}

	invalid := 0
	for _, f := range files {
		s, err := parser.ParseFile(f)
		if err != nil {
			invalid++
			fmt.Fprintf(output, "✗ %s\n  %v\n", f, err)
			continue
		}

		stages, err := executor.CalculateStages(s.Phases)
		if err != nil {
			invalid++
			fmt.Fprintf(output, "✗ %s\n  %v\n", f, err)
			continue
		}

		fmt.Fprintf(output, "✓ %s: suite %q, %d phase(s) in %d stage(s)\n", f, s.Name, len(s.Phases), len(stages))
		if len(s.Devices) > 0 {
			fmt.Fprintf(output, "  devices: %s\n", strings.Join(s.Devices, ", "))
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d suite file(s) invalid", invalid, len(files))
	}
	return nil
}
