// Package browser defines the rendering/interaction provider contract the
// phase engine drives, plus a lightweight HTTP implementation of it.
//
// The engine only depends on the Renderer and Page interfaces; real browser
// automation drivers plug in by implementing them.
package browser

import (
	"context"
	"errors"

	"github.com/harrison/phasegate/internal/models"
)

// ErrScreenshotUnsupported is returned by renderers that cannot capture pixels.
var ErrScreenshotUnsupported = errors.New("renderer does not support screenshots")

// ErrNotLaunched is returned when a renderer is used before Launch.
var ErrNotLaunched = errors.New("renderer not launched")

// Page is a read-only handle to the currently rendered, settled page.
// Analyzers receive the same Page concurrently and must not mutate it.
type Page interface {
	URL() string
	HTMLPath() string
	Query(ctx context.Context, selector string) (bool, error)
}

// Renderer renders pages and performs interactions for one worker.
// A Renderer is owned by exactly one active phase at a time.
type Renderer interface {
	Launch(ctx context.Context) error
	Execute(ctx context.Context, step models.Step) error
	CaptureScreenshot(ctx context.Context) (string, error)
	CaptureHTML(ctx context.Context) (string, error)
	// ClearArtifacts drops captured screenshots and logs between phases.
	ClearArtifacts() error
	// IsolatePhase clears cookies and local/session state between retry attempts.
	IsolatePhase(ctx context.Context) error
	ValidateDOM(ctx context.Context, selector string) (bool, error)
	Page() Page
	Close() error
}

// Factory creates a fresh Renderer for a device profile.
type Factory func(device string) (Renderer, error)
