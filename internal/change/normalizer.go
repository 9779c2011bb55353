package change

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"filerelay/internal/pathsafe"
)

// Normalizer maps notifications to events. It remembers which files it has
// seen so that a removal is only reported for a path that was observed to
// exist. A Normalizer is owned by a single goroutine.
type Normalizer struct {
	root     string
	observed map[string]struct{}
	readFile func(string) ([]byte, error)
	stat     func(string) (fs.FileInfo, error)
}

func NewNormalizer(root string) *Normalizer {
	return &Normalizer{
		root:     filepath.Clean(root),
		observed: make(map[string]struct{}),
		readFile: os.ReadFile,
		stat:     os.Stat,
	}
}

// Observe marks files as existing without emitting events for them.
func (n *Normalizer) Observe(paths ...string) {
	for _, path := range paths {
		n.observed[filepath.Clean(path)] = struct{}{}
	}
}

// Observed reports whether path is currently known to exist.
func (n *Normalizer) Observed(path string) bool {
	_, ok := n.observed[filepath.Clean(path)]
	return ok
}

// Normalize expands a notification into events, one per path in order.
func (n *Normalizer) Normalize(note Notification) []Event {
	var events []Event
	for _, raw := range note.Paths {
		path := filepath.Clean(raw)
		if !pathsafe.Within(n.root, path) {
			continue
		}
		switch note.Op {
		case OpCreate, OpModify:
			event, ok := n.contentEvent(note.Op, path)
			if ok {
				events = append(events, event)
			}
		case OpRemove:
			events = append(events, n.removeEvents(path)...)
		}
	}
	return events
}

func (n *Normalizer) contentEvent(op Op, path string) (Event, bool) {
	if info, err := n.stat(path); err == nil && info.IsDir() {
		return Event{}, false
	}
	// The file may be gone again by now; the event is still reported with
	// whatever could be read.
	content, err := n.readFile(path)
	if err != nil {
		content = nil
	}
	n.observed[path] = struct{}{}
	if op == OpCreate {
		return Create(path, content), true
	}
	return Update(path, content), true
}

func (n *Normalizer) removeEvents(path string) []Event {
	if _, ok := n.observed[path]; ok {
		delete(n.observed, path)
		return []Event{Delete(path)}
	}

	// A removed directory takes every observed file below it along.
	var children []string
	for observed := range n.observed {
		if pathsafe.Within(path, observed) {
			children = append(children, observed)
		}
	}
	sort.Strings(children)
	events := make([]Event, 0, len(children))
	for _, child := range children {
		delete(n.observed, child)
		events = append(events, Delete(child))
	}
	return events
}
