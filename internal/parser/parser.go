// Package parser loads suite definition files into models.Suite.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/phasegate/internal/models"
)

// Format represents the format of a suite file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatYAML represents a YAML (.yaml, .yml) suite file
	FormatYAML
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// Parser is the interface that all suite parsers must implement
type Parser interface {
	// Parse reads from an io.Reader and returns a parsed Suite
	Parse(r io.Reader) (*models.Suite, error)
}

// DetectFormat detects the suite format based on file extension.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// NewParser creates a new parser instance for the specified format
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatYAML:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile detects the format of path, parses and validates it, and stores
// the absolute file path in Suite.FilePath.
func ParseFile(path string) (*models.Suite, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .yaml, .yml)", path)
	}

	parser, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	s, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse suite %s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	s.FilePath = absPath

	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// ParseFiles parses every path, expanding directories into the suite files
// they contain. Results are in path order; the first failure aborts.
func ParseFiles(paths []string) ([]*models.Suite, error) {
	files, err := FilterSuiteFiles(paths)
	if err != nil {
		return nil, err
	}

	suites := make([]*models.Suite, 0, len(files))
	seen := make(map[string]string)
	for _, f := range files {
		s, err := ParseFile(f)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("duplicate suite name %q in %s and %s", s.Name, prev, f)
		}
		seen[s.Name] = f
		suites = append(suites, s)
	}
	return suites, nil
}
