package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// excludedDirs are never descended into when scanning for suites.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"testdata":     true,
}

// FilterSuiteFiles accepts file and/or directory paths and returns a sorted,
// deduplicated list of absolute suite file paths.
//
// Explicit file arguments must have a suite extension. Directories are
// scanned recursively, skipping hidden and excluded directories.
func FilterSuiteFiles(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths provided")
	}

	files := make(map[string]bool)
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %q: %w", path, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("path %q does not exist", absPath)
			}
			return nil, fmt.Errorf("failed to access path %q: %w", absPath, err)
		}

		if !info.IsDir() {
			if DetectFormat(absPath) == FormatUnknown {
				return nil, fmt.Errorf("unknown file format: %s (supported: .yaml, .yml)", absPath)
			}
			files[absPath] = true
			continue
		}

		found, err := scanSuiteDir(absPath)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			files[f] = true
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no suite files found (supported: .yaml, .yml)")
	}

	result := make([]string, 0, len(files))
	for f := range files {
		result = append(result, f)
	}
	sort.Strings(result)
	return result, nil
}

func scanSuiteDir(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Unreadable subdirectories are skipped, the root is not.
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || excludedDirs[d.Name()]) {
				return filepath.SkipDir
			}
			return nil
		}
		if DetectFormat(d.Name()) == FormatYAML {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %q: %w", root, err)
	}
	return files, nil
}
