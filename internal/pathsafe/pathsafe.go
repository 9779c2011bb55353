// Package pathsafe confines peer-supplied relative paths to a base directory.
package pathsafe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrInvalidPath is returned for paths that are not valid text or that would
// resolve outside the base directory.
var ErrInvalidPath = errors.New("InvalidPath")

const dirMode = 0o755

// Resolve joins relative onto baseDir and returns the absolute result. The
// result is always a strict descendant of baseDir.
func Resolve(baseDir, relative string) (string, error) {
	if !utf8.ValidString(relative) {
		return "", invalid(relative, "not valid utf-8")
	}
	if strings.IndexByte(relative, 0) >= 0 {
		return "", invalid(relative, "contains NUL byte")
	}
	native := filepath.FromSlash(relative)
	if filepath.IsAbs(native) || filepath.VolumeName(native) != "" || strings.HasPrefix(relative, "/") {
		return "", invalid(relative, "absolute path")
	}
	if !filepath.IsLocal(native) {
		return "", invalid(relative, "escapes base directory")
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base directory: %w", err)
	}
	joined := filepath.Join(base, native)
	if !Within(base, joined) {
		return "", invalid(relative, "escapes base directory")
	}
	if err := checkLinks(base, joined); err != nil {
		return "", invalid(relative, err.Error())
	}
	return joined, nil
}

// checkLinks resolves symlinks along the part of path that already exists
// and requires the result to stay inside base.
func checkLinks(base, path string) error {
	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		// A base that cannot be resolved has nothing on disk to follow.
		return nil
	}
	existing := path
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing || !Within(base, parent) {
			return nil
		}
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return fmt.Errorf("resolve links: %v", err)
	}
	if resolved != realBase && !Within(realBase, resolved) {
		return errors.New("links outside base directory")
	}
	return nil
}

// Within reports whether path lies strictly below root. Both are expected to
// be clean absolute paths.
func Within(root, path string) bool {
	root = strings.TrimRight(root, string(filepath.Separator)) + string(filepath.Separator)
	return strings.HasPrefix(path, root)
}

// EnsureParent creates every missing ancestor directory of path.
func EnsureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	return nil
}

func invalid(path, reason string) error {
	return fmt.Errorf("%w: %q %s", ErrInvalidPath, path, reason)
}
