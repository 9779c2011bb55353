package watcher

import (
	"errors"
	"sync"

	"filerelay/internal/pathsafe"
)

var ErrRootBusy = errors.New("watch root is owned by another session")

// Registry grants exclusive ownership of watch roots. Two live sessions may
// not watch the same root or nested roots.
type Registry struct {
	mutex sync.Mutex
	roots map[string]struct{}
}

var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{roots: make(map[string]struct{})}
}

// Acquire claims root and returns a release func.
func (registry *Registry) Acquire(root string) (func(), error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	for owned := range registry.roots {
		if owned == root || pathsafe.Within(owned, root) || pathsafe.Within(root, owned) {
			return nil, ErrRootBusy
		}
	}
	registry.roots[root] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			registry.mutex.Lock()
			delete(registry.roots, root)
			registry.mutex.Unlock()
		})
	}, nil
}
