package watcher

import (
	"io/fs"
	"path/filepath"
	"sort"

	"filerelay/internal/pathsafe"
)

// scanTree lists the directories (root included) and regular files below
// root. Entries that vanish or cannot be read during the walk are skipped,
// and so is anything skip reports, along with its subtree.
func scanTree(root string, skip func(string) bool) (dirs, files []string, err error) {
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			return nil
		}
		if path != root && skip != nil && skip(path) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case entry.IsDir():
			dirs = append(dirs, path)
		case entry.Type().IsRegular():
			files = append(files, path)
		}
		return nil
	})
	return dirs, files, err
}

// addTree registers every directory under dir and returns the files found
// there, which the caller reports as created.
func (session *Session) addTree(dir string) []string {
	dirs, files, err := scanTree(dir, session.ignored)
	if err != nil {
		session.logWarn("scan directory failed", map[string]string{
			"path":  dir,
			"error": err.Error(),
		})
		return nil
	}
	for _, path := range dirs {
		session.addWatch(path)
	}
	return files
}

func (session *Session) addWatch(path string) {
	if _, ok := session.dirs[path]; ok {
		return
	}
	if err := session.backend.Add(path); err != nil {
		session.logWarn("watch add failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	session.dirs[path] = struct{}{}
	session.activeWatches.Store(int64(len(session.dirs)))
	session.logDebug("watch added", path)
}

// dropTree forgets dir and every watched directory below it. The kernel
// already discarded the watches of removed directories, so errors from the
// backend are ignored.
func (session *Session) dropTree(dir string) bool {
	if _, ok := session.dirs[dir]; !ok {
		return false
	}
	removed := []string{dir}
	for path := range session.dirs {
		if pathsafe.Within(dir, path) {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	for _, path := range removed {
		delete(session.dirs, path)
		_ = session.backend.Remove(path)
		session.logDebug("watch removed", path)
	}
	session.activeWatches.Store(int64(len(session.dirs)))
	return true
}
