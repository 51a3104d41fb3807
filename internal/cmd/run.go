package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/phasegate/internal/config"
	"github.com/harrison/phasegate/internal/executor"
	"github.com/harrison/phasegate/internal/logger"
	"github.com/harrison/phasegate/internal/models"
	"github.com/harrison/phasegate/internal/parser"
	"github.com/harrison/phasegate/internal/report"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <suite-file-or-directory>...",
		Short: "Execute one or more test suites",
		Long: `Execute test suites phase by phase on every requested device.

Each suite runs once per device profile. Devices come from --device when
given, otherwise from the suite's devices list, otherwise "desktop".
Suite/device runs execute in parallel up to pool_size.

Configuration is loaded from .phasegate/config.yaml if present.
CLI flags override configuration file settings.

The command exits non-zero unless every run passed.

Examples:
  phasegate run suites/checkout.yaml
  phasegate run suites/ --device desktop --device mobile
  phasegate run --dry-run suites/checkout.yaml
  phasegate run --config ci.yaml --pool-size 4 suites/`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .phasegate/config.yaml)")
	cmd.Flags().StringArray("device", nil, "Device profile to run (repeatable)")
	cmd.Flags().Int("max-retries", 0, "Retries after a flaky phase execution")
	cmd.Flags().Int("pool-size", 0, "Maximum suite/device runs in parallel")
	cmd.Flags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	cmd.Flags().String("report-dir", "", "Directory for JSON reports")
	cmd.Flags().Bool("dry-run", false, "Validate suites and show the execution plan without running")

	return cmd
}

// loadConfig loads the explicit config file, or config.yaml in the
// phasegate home directory
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}
	home, err := config.GetHome()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(filepath.Join(home, "config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	// Default .phasegate/... paths belong to the project root, not the cwd.
	cfg.ResolvePaths(filepath.Dir(home))
	return cfg, nil
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Build flag pointers for merge (only changed values)
	var maxRetriesPtr, poolSizePtr *int
	var logLevelPtr, reportDirPtr *string
	var dryRunPtr *bool
	if cmd.Flags().Changed("max-retries") {
		v, _ := cmd.Flags().GetInt("max-retries")
		maxRetriesPtr = &v
	}
	if cmd.Flags().Changed("pool-size") {
		v, _ := cmd.Flags().GetInt("pool-size")
		poolSizePtr = &v
	}
	if cmd.Flags().Changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		logLevelPtr = &v
	}
	if cmd.Flags().Changed("report-dir") {
		v, _ := cmd.Flags().GetString("report-dir")
		reportDirPtr = &v
	}
	if cmd.Flags().Changed("dry-run") {
		v, _ := cmd.Flags().GetBool("dry-run")
		dryRunPtr = &v
	}
	cfg.MergeWithFlags(maxRetriesPtr, poolSizePtr, logLevelPtr, reportDirPtr, dryRunPtr)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	devices, _ := cmd.Flags().GetStringArray("device")

	out := cmd.OutOrStdout()
	suites, err := parser.ParseFiles(args)
	if err != nil {
		return fmt.Errorf("failed to load suites: %w", err)
	}
	jobs := buildJobs(suites, devices)

	if cfg.DryRun {
		return printPlan(out, jobs)
	}

	consoleLog := logger.NewConsoleLogger(out, cfg.LogLevel)
	fileLog, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	log := logger.NewMultiLogger(consoleLog, fileLog)

	eng, err := newEngine(cfg, log, httpRenderers(cfg.ArtifactDir))
	if err != nil {
		return err
	}
	defer eng.close()

	jobResults, runErr := executor.NewPool(eng, cfg.PoolSize, log).Run(commandContext(cmd), jobs)
	if runErr != nil {
		log.Warnf("%v", runErr)
	}

	results := finishedResults(jobResults)
	if err := writeReports(commandContext(cmd), report.NewWriter(cfg.ReportDir), results, out); err != nil {
		log.Warnf("%v", err)
	}

	_, cost := eng.usage.Total()
	return finish(out, jobResults, cost)
}

func commandContext(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}

// finishedResults collects every result, including partial results of
// aborted runs.
func finishedResults(jobResults []executor.JobResult) []*models.SuiteResult {
	var results []*models.SuiteResult
	for _, jr := range jobResults {
		if jr.Result != nil {
			results = append(results, jr.Result)
		}
	}
	return results
}

func writeReports(ctx context.Context, w *report.Writer, results []*models.SuiteResult, out io.Writer) error {
	var failed []string
	for _, r := range results {
		path, err := w.Write(ctx, r)
		if err != nil {
			failed = append(failed, err.Error())
			continue
		}
		fmt.Fprintf(out, "Report: %s\n", path)
	}
	if _, err := w.WriteIndex(ctx, results); err != nil {
		failed = append(failed, err.Error())
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to write reports: %s", strings.Join(failed, "; "))
	}
	return nil
}

// finish prints the overall outcome and returns an error unless every run
// completed and passed.
func finish(out io.Writer, jobResults []executor.JobResult, cost float64) error {
	passed := 0
	for _, jr := range jobResults {
		if jr.Err == nil && jr.Result != nil && models.ExitCode(jr.Result.Status) == 0 {
			passed++
		}
	}

	total := len(jobResults)
	fmt.Fprintf(out, "\n%d/%d runs passed, total cost $%.4f\n", passed, total, cost)
	if passed != total {
		return fmt.Errorf("%d of %d runs did not pass", total-passed, total)
	}
	return nil
}

func printPlan(out io.Writer, jobs []executor.Job) error {
	fmt.Fprintf(out, "Dry-run mode: %d run(s) planned\n", len(jobs))
	for _, job := range jobs {
		stages, err := executor.CalculateStages(job.Suite.Phases)
		if err != nil {
			return fmt.Errorf("suite %s: %w", job.Suite.Name, err)
		}
		fmt.Fprintf(out, "\n%s on %s:\n", job.Suite.Name, job.Device)
		for _, st := range stages {
			fmt.Fprintf(out, "  %s: %s\n", st.Name, strings.Join(st.PhaseIDs, ", "))
		}
	}
	return nil
}
