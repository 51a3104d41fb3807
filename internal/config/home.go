package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetHome returns the phasegate home directory
// Priority order:
//  1. PHASEGATE_HOME environment variable (if set)
//  2. Nearest ancestor directory holding a .phasegate directory
//  3. Current working directory (fallback)
//
// The directory is created if it doesn't exist
func GetHome() (string, error) {
	if home := os.Getenv("PHASEGATE_HOME"); home != "" {
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	home := filepath.Join(cwd, ".phasegate")
	if root, ok := findProjectRoot(cwd); ok {
		home = filepath.Join(root, ".phasegate")
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create phasegate home directory: %w", err)
	}
	return home, nil
}

// findProjectRoot walks up from dir looking for an existing .phasegate directory
func findProjectRoot(dir string) (string, bool) {
	current := dir
	for {
		if info, err := os.Stat(filepath.Join(current, ".phasegate")); err == nil && info.IsDir() {
			return current, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// ResolvePaths makes the relative directory and database paths of c
// absolute against base.
func (c *Config) ResolvePaths(base string) {
	for _, p := range []*string{&c.LogDir, &c.ReportDir, &c.ArtifactDir, &c.History.DBPath} {
		if *p != "" && *p != ":memory:" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}
