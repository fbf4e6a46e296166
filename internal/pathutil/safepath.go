// Package pathutil confines user-supplied file locations to a base directory.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesBase is returned when a path resolves outside its base directory.
var ErrEscapesBase = errors.New("path escapes base directory")

// ResolveSafePath resolves userPath against baseDir and returns the
// symlink-free absolute location, which must lie inside baseDir.
//
// Relative paths are joined onto baseDir; absolute paths are checked as-is.
// The target itself need not exist yet: the deepest existing ancestor is
// resolved and the missing components are re-attached.
//
// Empty paths, paths carrying a NUL byte and paths that escape baseDir
// (including through a symlink) are rejected.
func ResolveSafePath(baseDir, userPath string) (string, error) {
	if strings.TrimSpace(userPath) == "" {
		return "", errors.New("path is empty or whitespace-only")
	}
	if strings.ContainsRune(userPath, 0) {
		return "", errors.New("path contains null byte")
	}

	candidate := userPath
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(baseDir, candidate)
	}

	resolved, err := resolvePartial(filepath.Clean(candidate))
	if err != nil {
		return "", err
	}

	root, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}

	if !within(root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrEscapesBase, userPath)
	}

	return resolved, nil
}

// within reports whether target equals root or lies beneath it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolvePartial evaluates symlinks on the longest existing prefix of path
// and appends the components that do not exist yet.
func resolvePartial(path string) (string, error) {
	var missing []string
	current := path

	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve symlinks: %w", err)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", errors.New("no existing parent directory found")
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}
