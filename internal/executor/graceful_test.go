package executor

import (
	"testing"
)

func TestGracefulWarn_NilLogger(t *testing.T) {
	// Should not panic with nil logger
	GracefulWarn(nil, "test message: %v", "error")

	var logger Logger
	GracefulWarn(logger, "typed nil interface: %v", "error")
}

func TestGracefulWarn_WithLogger(t *testing.T) {
	logger := &recordingLogger{}
	GracefulWarn(logger, "test message: %v", "error")

	if len(logger.warnings) != 1 {
		t.Fatalf("expected 1 Warnf call, got %d", len(logger.warnings))
	}
	if logger.warnings[0] != "test message: error" {
		t.Errorf("unexpected warning %q", logger.warnings[0])
	}
}

func TestGracefulInfo_NilLogger(t *testing.T) {
	// Should not panic with nil logger
	GracefulInfo(nil, "test message: %v", "value")
}
