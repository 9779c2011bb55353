package watcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Ignore matches paths relative to the watch root. Patterns use '/' as the
// separator. A leading "/" anchors a pattern at the root; any other pattern
// also matches at every depth. An ignored directory hides its whole subtree.
type Ignore struct {
	patterns []glob.Glob
}

func CompileIgnore(patterns []string) (*Ignore, error) {
	ignore := &Ignore{}
	for _, raw := range patterns {
		line := filepath.ToSlash(strings.TrimSpace(raw))
		line = strings.TrimSuffix(line, "/")
		if line == "" {
			continue
		}
		variants := []string{line, "**/" + line}
		if strings.HasPrefix(line, "/") {
			variants = []string{line[1:]}
		} else if strings.HasPrefix(line, "**/") {
			variants = []string{line, line[3:]}
		}
		for _, variant := range variants {
			compiled, err := glob.Compile(variant, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid ignore pattern %q: %w", raw, err)
			}
			ignore.patterns = append(ignore.patterns, compiled)
		}
	}
	return ignore, nil
}

// Match reports whether the root-relative path is ignored.
func (ignore *Ignore) Match(relative string) bool {
	if ignore == nil || relative == "" || relative == "." {
		return false
	}
	relative = filepath.ToSlash(relative)
	for _, pattern := range ignore.patterns {
		if pattern.Match(relative) {
			return true
		}
	}
	return false
}

func (session *Session) ignored(path string) bool {
	if session.ignore == nil {
		return false
	}
	relative, err := filepath.Rel(session.root, path)
	if err != nil {
		return false
	}
	return session.ignore.Match(relative)
}
