package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/harrison/phasegate/internal/models"
)

// maxBodyBytes bounds how much of a response the HTTP renderer will parse.
const maxBodyBytes = 10 << 20

// ElementNotFoundError reports an interaction against a selector with no match.
type ElementNotFoundError struct {
	Action   models.Action
	Selector string
	URL      string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("%s: no element matches %q on %s", e.Action, e.Selector, e.URL)
}

// NavigationError reports a failed page load.
type NavigationError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NavigationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("navigate %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// snapshot is an immutable parsed page shared read-only with analyzers.
type snapshot struct {
	url      string
	htmlPath string
	doc      *html.Node
}

func (s *snapshot) URL() string {
	if s == nil {
		return ""
	}
	return s.url
}

func (s *snapshot) HTMLPath() string {
	if s == nil {
		return ""
	}
	return s.htmlPath
}

func (s *snapshot) Query(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.doc == nil {
		return false, ErrNotLaunched
	}
	compiled, err := compileSelector(sel)
	if err != nil {
		return false, err
	}
	return compiled.MatchFirst(s.doc) != nil, nil
}

// HTTPRenderer is a JavaScript-free renderer that loads pages over HTTP
// and answers DOM queries from the parsed markup. Element interactions are
// checked for a matching element; anchors are followed on click.
type HTTPRenderer struct {
	BaseURL     string
	ArtifactDir string
	Device      string
	UserAgent   string
	Timeout     time.Duration

	mu        sync.Mutex
	client    *http.Client
	current   *snapshot
	artifacts []string
	seq       int
}

// NewHTTPRenderer creates a renderer rooted at baseURL that writes artifacts to artifactDir.
func NewHTTPRenderer(baseURL, artifactDir, device string) *HTTPRenderer {
	return &HTTPRenderer{
		BaseURL:     baseURL,
		ArtifactDir: artifactDir,
		Device:      device,
		UserAgent:   "phasegate/" + device,
		Timeout:     30 * time.Second,
	}
}

// Launch prepares the HTTP client and artifact directory.
func (r *HTTPRenderer) Launch(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.ArtifactDir, 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	r.client = &http.Client{Jar: jar, Timeout: r.Timeout}
	return nil
}

// Execute performs one interaction step.
func (r *HTTPRenderer) Execute(ctx context.Context, step models.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return ErrNotLaunched
	}

	switch step.Action {
	case models.ActionNavigate:
		return r.navigate(ctx, step.Target)
	case models.ActionWait:
		return wait(ctx, step.Value)
	}

	if r.current == nil {
		return fmt.Errorf("%s: no page loaded", step.Action)
	}

	switch step.Action {
	case models.ActionScroll, models.ActionPress:
		if step.Selector == "" {
			return nil
		}
	}

	compiled, err := compileSelector(step.Selector)
	if err != nil {
		return err
	}
	node := compiled.MatchFirst(r.current.doc)
	if node == nil {
		return &ElementNotFoundError{Action: step.Action, Selector: step.Selector, URL: r.current.url}
	}

	if step.Action == models.ActionClick && node.Data == "a" {
		if href, ok := attr(node, "href"); ok && href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
			return r.navigate(ctx, href)
		}
	}
	return nil
}

func wait(ctx context.Context, value string) error {
	d := time.Second
	if value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		d = parsed
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *HTTPRenderer) resolve(target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	base := r.BaseURL
	if r.current != nil {
		base = r.current.url
	}
	if base == "" {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

func (r *HTTPRenderer) navigate(ctx context.Context, target string) error {
	full, err := r.resolve(target)
	if err != nil {
		return &NavigationError{URL: target, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return &NavigationError{URL: full, Err: err}
	}
	req.Header.Set("User-Agent", r.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return &NavigationError{URL: full, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &NavigationError{URL: full, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &NavigationError{URL: full, Err: err}
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return &NavigationError{URL: full, Err: err}
	}

	r.current = &snapshot{url: resp.Request.URL.String(), doc: doc}
	return nil
}

// CaptureScreenshot is not available without a pixel renderer.
func (r *HTTPRenderer) CaptureScreenshot(ctx context.Context) (string, error) {
	return "", ErrScreenshotUnsupported
}

// CaptureHTML writes the current DOM to the artifact directory.
func (r *HTTPRenderer) CaptureHTML(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return "", fmt.Errorf("capture html: no page loaded")
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, r.current.doc); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	r.seq++
	name := fmt.Sprintf("%s-%03d.html", sanitize(r.Device), r.seq)
	path := filepath.Join(r.ArtifactDir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write html snapshot: %w", err)
	}

	r.current = &snapshot{url: r.current.url, htmlPath: path, doc: r.current.doc}
	r.artifacts = append(r.artifacts, path)
	return path, nil
}

func sanitize(s string) string {
	if s == "" {
		return "default"
	}
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		}
		return '_'
	}, s)
}

// Artifacts returns the artifact paths captured since the last ClearArtifacts.
func (r *HTTPRenderer) Artifacts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.artifacts...)
}

// ClearArtifacts resets the captured artifact buffer. Files already
// referenced by results stay on disk.
func (r *HTTPRenderer) ClearArtifacts() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = nil
	return nil
}

// IsolatePhase drops cookies so the next attempt starts a fresh session.
func (r *HTTPRenderer) IsolatePhase(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return ErrNotLaunched
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("reset cookie jar: %w", err)
	}
	r.client.Jar = jar
	return nil
}

// ValidateDOM reports whether selector matches an element on the current page.
func (r *HTTPRenderer) ValidateDOM(ctx context.Context, selector string) (bool, error) {
	return r.Page().Query(ctx, selector)
}

// Page returns the current page handle. The handle stays valid after later
// navigation; it keeps pointing at the document it was taken from.
func (r *HTTPRenderer) Page() Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return (*snapshot)(nil)
	}
	return r.current
}

// Close releases idle connections.
func (r *HTTPRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.CloseIdleConnections()
	}
	return nil
}
