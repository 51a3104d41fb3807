package logger

import (
	"sort"
	"time"

	"github.com/harrison/phasegate/internal/models"
)

// RunLogger is the full set of events a run emits.
type RunLogger interface {
	LogPhaseStart(phase models.Phase, attempt int)
	LogPhaseResult(result models.PhaseResult)
	LogPhaseSkipped(phase models.Phase, reason string)
	LogRetry(phase models.Phase, attempt int, err error)
	LogOverride(phase models.Phase, breach models.ThresholdBreach)
	LogSummary(result models.SuiteResult)
	LogRateLimitCountdown(remaining, total time.Duration)
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// MultiLogger delegates every event to multiple loggers. Nil entries are
// dropped.
type MultiLogger struct {
	loggers []RunLogger
}

// NewMultiLogger creates a MultiLogger.
func NewMultiLogger(loggers ...RunLogger) *MultiLogger {
	ml := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			ml.loggers = append(ml.loggers, l)
		}
	}
	return ml
}

func (ml *MultiLogger) LogPhaseStart(phase models.Phase, attempt int) {
	for _, l := range ml.loggers {
		l.LogPhaseStart(phase, attempt)
	}
}

func (ml *MultiLogger) LogPhaseResult(result models.PhaseResult) {
	for _, l := range ml.loggers {
		l.LogPhaseResult(result)
	}
}

func (ml *MultiLogger) LogPhaseSkipped(phase models.Phase, reason string) {
	for _, l := range ml.loggers {
		l.LogPhaseSkipped(phase, reason)
	}
}

func (ml *MultiLogger) LogRetry(phase models.Phase, attempt int, err error) {
	for _, l := range ml.loggers {
		l.LogRetry(phase, attempt, err)
	}
}

func (ml *MultiLogger) LogOverride(phase models.Phase, breach models.ThresholdBreach) {
	for _, l := range ml.loggers {
		l.LogOverride(phase, breach)
	}
}

func (ml *MultiLogger) LogSummary(result models.SuiteResult) {
	for _, l := range ml.loggers {
		l.LogSummary(result)
	}
}

func (ml *MultiLogger) LogRateLimitCountdown(remaining, total time.Duration) {
	for _, l := range ml.loggers {
		l.LogRateLimitCountdown(remaining, total)
	}
}

func (ml *MultiLogger) Warnf(format string, args ...interface{}) {
	for _, l := range ml.loggers {
		l.Warnf(format, args...)
	}
}

func (ml *MultiLogger) Infof(format string, args ...interface{}) {
	for _, l := range ml.loggers {
		l.Infof(format, args...)
	}
}

func (ml *MultiLogger) Debugf(format string, args ...interface{}) {
	for _, l := range ml.loggers {
		l.Debugf(format, args...)
	}
}

// LogProgress forwards to loggers that render progress.
func (ml *MultiLogger) LogProgress(done, total int) {
	for _, l := range ml.loggers {
		if p, ok := l.(interface{ LogProgress(done, total int) }); ok {
			p.LogProgress(done, total)
		}
	}
}

func sortedKeys(m map[string]*models.AnalyzerResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
