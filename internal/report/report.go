// Package report writes finished suite results to disk as JSON documents.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/phasegate/internal/filelock"
	"github.com/harrison/phasegate/internal/models"
)

// IndexFile is the name of the per-invocation report index.
const IndexFile = "index.json"

// Writer writes one JSON report per suite run into Dir.
type Writer struct {
	Dir string
	// Pretty enables indented output.
	Pretty bool
}

// NewWriter creates a Writer producing indented JSON in dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, Pretty: true}
}

// Path returns the report path for a result: <suite>-<device>-<runid>.json
func (w *Writer) Path(result *models.SuiteResult) string {
	device := result.Device
	if device == "" {
		device = "default"
	}
	name := fmt.Sprintf("%s-%s-%s.json", sanitize(result.Name), sanitize(device), sanitize(result.RunID))
	return filepath.Join(w.Dir, name)
}

// Write serializes the fully-populated result tree, including any checklist
// and trend attachments, and writes it atomically under a file lock.
func (w *Writer) Write(ctx context.Context, result *models.SuiteResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}
	if result.RunID == "" {
		return "", fmt.Errorf("result for %s has no run id", result.Name)
	}

	data, err := w.marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report for %s: %w", result.Name, err)
	}

	path := w.Path(result)
	if err := filelock.LockAndWrite(ctx, path, data); err != nil {
		return "", err
	}
	return path, nil
}

// IndexEntry summarizes one run in the report index.
type IndexEntry struct {
	RunID   string             `json:"run_id"`
	Suite   string             `json:"suite"`
	Device  string             `json:"device,omitempty"`
	Status  models.SuiteStatus `json:"status"`
	Summary string             `json:"summary"`
	CostUSD float64            `json:"cost_usd"`
	Report  string             `json:"report"`
}

// Index lists every run of one invocation.
type Index struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Passed      bool         `json:"passed"`
	Runs        []IndexEntry `json:"runs"`
}

// WriteIndex writes index.json for the given results. Passed is true only
// when every run passed. Report paths are relative to Dir.
func (w *Writer) WriteIndex(ctx context.Context, results []*models.SuiteResult) (string, error) {
	idx := Index{GeneratedAt: time.Now().UTC(), Passed: len(results) > 0, Runs: make([]IndexEntry, 0, len(results))}
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Status != models.SuitePassed {
			idx.Passed = false
		}
		idx.Runs = append(idx.Runs, IndexEntry{
			RunID:   r.RunID,
			Suite:   r.Name,
			Device:  r.Device,
			Status:  r.Status,
			Summary: r.Summary,
			CostUSD: r.CostUSD,
			Report:  filepath.Base(w.Path(r)),
		})
	}

	data, err := w.marshal(idx)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report index: %w", err)
	}
	path := filepath.Join(w.Dir, IndexFile)
	if err := filelock.LockAndWrite(ctx, path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (w *Writer) marshal(v interface{}) ([]byte, error) {
	if w.Pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
