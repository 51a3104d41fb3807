// Package logger provides logging implementations for phasegate runs.
//
// The logger package offers structured logging of execution progress at the
// phase and suite levels. Implementations are thread-safe and support various
// output destinations (console, file, etc.).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/phasegate/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs execution progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// It supports log level filtering to control message verbosity.
// Color output is automatically enabled for terminal output.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// logLevel determines the minimum log level for messages to be output.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// NO_COLOR (via color.NoColor) always wins.
func isTerminal(w io.Writer) bool {
	if w == nil || color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return cl.writer != nil && logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) { cl.logWithLevel("TRACE", message) }

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) { cl.logWithLevel("DEBUG", message) }

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) { cl.logWithLevel("INFO", message) }

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) { cl.logWithLevel("WARN", message) }

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) { cl.logWithLevel("ERROR", message) }

// Debugf formats and logs at DEBUG.
func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// Infof formats and logs at INFO.
func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// Warnf formats and logs at WARN.
func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// logWithLevel logs a message at the specified level if filtering allows it.
// Format: "[HH:MM:SS] [LEVEL] <message>"
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	coloredLevel := level
	if cl.colorOutput {
		coloredLevel = levelColor(level).Sprint(level)
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), coloredLevel, message))
}

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

func (cl *ConsoleLogger) write(s string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.writer.Write([]byte(s))
}

// paint applies c only when color output is enabled.
func (cl *ConsoleLogger) paint(c *color.Color, format string, args ...interface{}) string {
	if cl.colorOutput {
		return c.Sprintf(format, args...)
	}
	return fmt.Sprintf(format, args...)
}

// LogPhaseStart logs a phase attempt at INFO level.
// Format: "[HH:MM:SS] Phase <id> (<name>): attempt <n>"
func (cl *ConsoleLogger) LogPhaseStart(phase models.Phase, attempt int) {
	if !cl.shouldLog("info") {
		return
	}
	name := cl.paint(color.New(color.Bold), "%s", phase.Name)
	cl.write(fmt.Sprintf("[%s] Phase %s (%s): attempt %d\n", timestamp(), phase.ID, name, attempt))
}

// statusColor picks the color for a phase status.
func statusColor(status models.PhaseStatus) *color.Color {
	switch status {
	case models.StatusPassed:
		return color.New(color.FgGreen)
	case models.StatusFailed:
		return color.New(color.FgRed)
	case models.StatusSkipped:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgYellow)
	}
}

// LogPhaseResult logs the final outcome of a phase at INFO level.
// Format: "[HH:MM:SS] Phase <id>: <STATUS> (<duration>, confidence <c>) - <reason>"
func (cl *ConsoleLogger) LogPhaseResult(result models.PhaseResult) {
	if !cl.shouldLog("info") {
		return
	}

	status := cl.paint(statusColor(result.Status), "%s", strings.ToUpper(string(result.Status)))
	line := fmt.Sprintf("[%s] Phase %s: %s (%s, confidence %.2f)",
		timestamp(), result.PhaseID, status, formatDuration(result.Duration), result.Decision.Confidence)
	if result.Decision.Reason != "" {
		line += " - " + result.Decision.Reason
	}
	if result.Error != "" {
		line += cl.paint(color.New(color.FgRed), " [error: %s]", result.Error)
	}
	cl.write(line + "\n")
}

// LogPhaseSkipped logs a gated phase at INFO level.
func (cl *ConsoleLogger) LogPhaseSkipped(phase models.Phase, reason string) {
	if !cl.shouldLog("info") {
		return
	}
	skipped := cl.paint(color.New(color.FgHiBlack), "SKIPPED")
	cl.write(fmt.Sprintf("[%s] Phase %s: %s (%s)\n", timestamp(), phase.ID, skipped, reason))
}

// LogRetry logs a retry after an execution error at WARN level.
func (cl *ConsoleLogger) LogRetry(phase models.Phase, attempt int, err error) {
	cl.logWithLevel("WARN", fmt.Sprintf("Phase %s attempt %d failed, retrying: %v", phase.ID, attempt, err))
}

// LogOverride logs a threshold breach that overrode the AI verdict at WARN level.
func (cl *ConsoleLogger) LogOverride(phase models.Phase, breach models.ThresholdBreach) {
	cl.logWithLevel("WARN", fmt.Sprintf("Phase %s: %s score %.1f below minimum %.1f, verdict overridden",
		phase.ID, breach.Metric, breach.Score, breach.Minimum))
}

// LogRateLimitCountdown logs time left until a provider rate limit resets.
func (cl *ConsoleLogger) LogRateLimitCountdown(remaining, total time.Duration) {
	cl.logWithLevel("INFO", fmt.Sprintf("Rate limited: resuming in %s (of %s)", formatDuration(remaining), formatDuration(total)))
}

// LogProgress renders pool progress across suite/device runs at INFO level.
func (cl *ConsoleLogger) LogProgress(done, total int) {
	if !cl.shouldLog("info") {
		return
	}
	pb := NewProgressBar(total, 20, cl.colorOutput)
	pb.SetPrefix("Runs: ")
	pb.Update(done)
	cl.write(fmt.Sprintf("[%s] %s\n", timestamp(), pb.Render()))
}

// LogSummary logs the suite summary at INFO level.
func (cl *ConsoleLogger) LogSummary(result models.SuiteResult) {
	if !cl.shouldLog("info") {
		return
	}

	ts := timestamp()
	var b strings.Builder

	title := fmt.Sprintf("=== %s", result.Name)
	if result.Device != "" {
		title += " (" + result.Device + ")"
	}
	title += " ==="
	fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.Bold), "%s", title))

	var statusC *color.Color
	switch result.Status {
	case models.SuitePassed:
		statusC = color.New(color.FgGreen)
	case models.SuiteFailed:
		statusC = color.New(color.FgRed)
	default:
		statusC = color.New(color.FgYellow)
	}
	fmt.Fprintf(&b, "[%s] Status: %s - %s\n", ts, cl.paint(statusC, "%s", strings.ToUpper(string(result.Status))), result.Summary)

	c := result.Counts
	fmt.Fprintf(&b, "[%s] Phases: %d total, %s, %s, %d unknown, %d skipped\n", ts, c.Total,
		cl.paint(color.New(color.FgGreen), "%d passed", c.Passed),
		cl.paint(color.New(color.FgRed), "%d failed", c.Failed),
		c.Unknown, c.Skipped)
	fmt.Fprintf(&b, "[%s] Tokens: %d, cost: $%.4f\n", ts, result.Usage.Total, result.CostUSD)
	fmt.Fprintf(&b, "[%s] Duration: %s\n", ts, formatDuration(result.Duration()))

	if c.Failed > 0 {
		fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.FgRed), "Failed phases:"))
		for _, p := range result.Phases {
			if p.Status == models.StatusFailed {
				fmt.Fprintf(&b, "[%s]   - %s: %s\n", ts, p.PhaseID, p.Decision.Reason)
			}
		}
	}

	cl.write(b.String())
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m". Sub-second durations render in ms.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d > 0 && d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogPhaseStart(phase models.Phase, attempt int)                 {}
func (n *NoOpLogger) LogPhaseResult(result models.PhaseResult)                      {}
func (n *NoOpLogger) LogPhaseSkipped(phase models.Phase, reason string)             {}
func (n *NoOpLogger) LogRetry(phase models.Phase, attempt int, err error)           {}
func (n *NoOpLogger) LogOverride(phase models.Phase, breach models.ThresholdBreach) {}
func (n *NoOpLogger) LogSummary(result models.SuiteResult)                          {}
func (n *NoOpLogger) LogRateLimitCountdown(remaining, total time.Duration)          {}
func (n *NoOpLogger) Warnf(format string, args ...interface{})                      {}
func (n *NoOpLogger) Infof(format string, args ...interface{})                      {}
func (n *NoOpLogger) Debugf(format string, args ...interface{})                     {}
