package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/phasegate/internal/models"
)

// FileLogger logs run events to files in a log directory.
// It creates a timestamped per-run log file, per-phase detailed logs,
// and maintains a latest.log symlink pointing to the most recent run.
// It is thread-safe and implements the executor.Logger interface.
type FileLogger struct {
	logDir    string
	runLog    *os.File
	runFile   string
	phasesDir string
	logLevel  string
	mu        sync.Mutex
}

// NewFileLoggerWithDir creates a new FileLogger with a custom log directory.
// Uses default log level "info".
func NewFileLoggerWithDir(logDir string) (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(logDir, "info")
}

// NewFileLoggerWithDirAndLevel creates a new FileLogger with a custom log directory and log level.
func NewFileLoggerWithDirAndLevel(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	phasesDir := filepath.Join(logDir, "phases")
	if err := os.MkdirAll(phasesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create phases directory: %w", err)
	}

	// Generate timestamped filename: run-YYYYMMDD-HHMMSS.log
	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", timestamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:    logDir,
		runLog:    file,
		runFile:   runFile,
		phasesDir: phasesDir,
		logLevel:  normalizeLogLevel(logLevel),
	}

	logger.writeRunLog("=== phasegate Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// shouldLog checks if a message at the given level should be logged.
func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// logWithLevel logs a message at the specified level if filtering allows it.
func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format("15:04:05"), level, message))
}

// Debugf formats and logs at DEBUG.
func (fl *FileLogger) Debugf(format string, args ...interface{}) {
	fl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// Infof formats and logs at INFO.
func (fl *FileLogger) Infof(format string, args ...interface{}) {
	fl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// Warnf formats and logs at WARN.
func (fl *FileLogger) Warnf(format string, args ...interface{}) {
	fl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// LogPhaseStart logs a phase attempt at INFO level.
func (fl *FileLogger) LogPhaseStart(phase models.Phase, attempt int) {
	fl.logWithLevel("INFO", fmt.Sprintf("Phase %s (%s): attempt %d", phase.ID, phase.Name, attempt))
}

// LogPhaseSkipped logs a gated phase at INFO level.
func (fl *FileLogger) LogPhaseSkipped(phase models.Phase, reason string) {
	fl.logWithLevel("INFO", fmt.Sprintf("Phase %s: SKIPPED (%s)", phase.ID, reason))
}

// LogRetry logs a retry at WARN level.
func (fl *FileLogger) LogRetry(phase models.Phase, attempt int, err error) {
	fl.logWithLevel("WARN", fmt.Sprintf("Phase %s attempt %d failed, retrying: %v", phase.ID, attempt, err))
}

// LogOverride logs a threshold override at WARN level.
func (fl *FileLogger) LogOverride(phase models.Phase, breach models.ThresholdBreach) {
	fl.logWithLevel("WARN", fmt.Sprintf("Phase %s: %s score %.1f below minimum %.1f, verdict overridden",
		phase.ID, breach.Metric, breach.Score, breach.Minimum))
}

// LogRateLimitCountdown logs rate-limit waits at INFO level.
func (fl *FileLogger) LogRateLimitCountdown(remaining, total time.Duration) {
	fl.logWithLevel("INFO", fmt.Sprintf("Rate limited: resuming in %s (of %s)", formatDuration(remaining), formatDuration(total)))
}

// LogPhaseResult writes a one-line result to the run log and a detailed
// log to phases/<phase-id>.log.
func (fl *FileLogger) LogPhaseResult(result models.PhaseResult) {
	fl.logWithLevel("INFO", fmt.Sprintf("Phase %s: %s (%.1fs, confidence %.2f)",
		result.PhaseID, strings.ToUpper(string(result.Status)), result.Duration.Seconds(), result.Decision.Confidence))

	if err := fl.writePhaseLog(result); err != nil {
		fl.logWithLevel("WARN", err.Error())
	}
}

func (fl *FileLogger) writePhaseLog(result models.PhaseResult) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	path := filepath.Join(fl.phasesDir, fmt.Sprintf("phase-%s.log", sanitizeName(result.PhaseID)))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create phase log file: %w", err)
	}
	defer file.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "=== Phase %s: %s ===\n", result.PhaseID, result.PhaseName)
	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	fmt.Fprintf(&b, "Verdict: %s (confidence %.2f)\n", result.Decision.Verdict, result.Decision.Confidence)
	fmt.Fprintf(&b, "Duration: %.1fs\n", result.Duration.Seconds())
	fmt.Fprintf(&b, "Attempts: %d\n", result.Attempts)
	if result.Decision.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", result.Decision.Reason)
	}
	if result.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", result.Error)
	}

	if len(result.Analyzers) > 0 {
		b.WriteString("\n=== Analyzers ===\n")
		for _, name := range sortedKeys(result.Analyzers) {
			a := result.Analyzers[name]
			fmt.Fprintf(&b, "%s: %.1f\n", name, a.Score)
			for _, sub := range a.SubScores {
				fmt.Fprintf(&b, "  %s: %.1f\n", sub.Name, sub.Score)
			}
		}
	}

	if len(result.Decision.Overrides) > 0 {
		b.WriteString("\n=== Threshold Overrides ===\n")
		for _, o := range result.Decision.Overrides {
			fmt.Fprintf(&b, "%s: %.1f < %.1f\n", o.Metric, o.Score, o.Minimum)
		}
	}

	if len(result.Decision.Issues) > 0 {
		b.WriteString("\n=== Issues ===\n")
		for _, issue := range result.Decision.Issues {
			fmt.Fprintf(&b, "[%s] %s", issue.Severity, issue.Title)
			if issue.Location != "" {
				fmt.Fprintf(&b, " @ %s", issue.Location)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nCompleted at: %s\n", time.Now().Format(time.RFC3339))

	if _, err := file.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write phase log: %w", err)
	}
	return nil
}

// LogSummary logs the suite summary at INFO level.
func (fl *FileLogger) LogSummary(result models.SuiteResult) {
	if !fl.shouldLog("info") {
		return
	}

	ts := time.Now().Format("15:04:05")
	c := result.Counts
	message := fmt.Sprintf(
		"\n[%s] === SUITE SUMMARY: %s (%s) ===\n"+
			"[%s] Run ID:       %s\n"+
			"[%s] Status:       %s\n"+
			"[%s] Summary:      %s\n"+
			"[%s] Phases:       %d total, %d passed, %d failed, %d unknown, %d skipped\n"+
			"[%s] Tokens:       %d ($%.4f)\n"+
			"[%s] Total time:   %.1fs\n",
		ts, result.Name, result.Device,
		ts, result.RunID,
		ts, strings.ToUpper(string(result.Status)),
		ts, result.Summary,
		ts, c.Total, c.Passed, c.Failed, c.Unknown, c.Skipped,
		ts, result.Usage.Total, result.CostUSD,
		ts, result.Duration().Seconds(),
	)
	fl.writeRunLog(message)
}

// Close flushes and closes the run log file.
// It should be called when the logger is no longer needed.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}

	return nil
}

// writeRunLog is a thread-safe helper to write to the run log file.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		// Flush after each write for real-time logging
		fl.runLog.Sync()
	}
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
