package executor

// graceful.go provides helpers for the degrade-don't-fail pattern used
// around analyzers, vision calls, artifact handling and providers.

type warnLogger interface {
	Warnf(format string, args ...interface{})
}

type infoLogger interface {
	Infof(format string, args ...interface{})
}

// GracefulWarn logs a warning if logger is non-nil, using the given format and args.
//
// Usage:
//
//	if err := renderer.ClearArtifacts(); err != nil {
//	    GracefulWarn(e.Logger, "clear artifacts: %v", err)
//	}
func GracefulWarn(logger warnLogger, format string, args ...interface{}) {
	if logger != nil {
		logger.Warnf(format, args...)
	}
}

// GracefulInfo logs an info message if logger is non-nil.
func GracefulInfo(logger infoLogger, format string, args ...interface{}) {
	if logger != nil {
		logger.Infof(format, args...)
	}
}
