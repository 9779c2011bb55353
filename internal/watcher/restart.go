package watcher

import (
	"fmt"
	"time"

	"filerelay/internal/change"

	"github.com/fsnotify/fsnotify"
)

const (
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

func restartDelay(attempt int) time.Duration {
	return restartBaseDelay * time.Duration(1<<attempt)
}

// restart replaces a backend whose channels closed underneath the session.
// It reports false once the attempts are exhausted or the session ends.
func (session *Session) restart() bool {
	for session.restartAttempts < maxRestartAttempts {
		delay := restartDelay(session.restartAttempts)
		session.restartAttempts++

		timer := time.NewTimer(delay)
		select {
		case <-session.ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		discovered, err := session.replaceBackend()
		if err != nil {
			session.logWarn("watch restart failed", map[string]string{
				"attempt": fmt.Sprint(session.restartAttempts),
				"error":   err.Error(),
			})
			continue
		}

		session.restartAttempts = 0
		session.restarts.Add(1)
		session.metrics.WatchRestarted()
		session.logger.Info("watch restarted", nil)
		if !session.emit(change.Failure(fmt.Errorf("%w: watch restarted, changes during the gap may be missing", ErrWatchFailure))) {
			return false
		}
		return session.emitAll(session.normalizer.Normalize(change.Notification{
			Op:    change.OpCreate,
			Paths: discovered,
		}))
	}

	session.emit(change.Failure(fmt.Errorf("%w: watch backend stopped", ErrWatchFailure)))
	return false
}

// replaceBackend registers the tree with a fresh fsnotify watcher and returns
// files that were not observed before.
func (session *Session) replaceBackend() ([]string, error) {
	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := replacement.Add(session.root); err != nil {
		_ = replacement.Close()
		return nil, err
	}

	_ = session.backend.Close()
	session.backend = replacement
	session.dirs = map[string]struct{}{session.root: {}}
	session.activeWatches.Store(1)

	var discovered []string
	for _, path := range session.addTree(session.root) {
		if !session.normalizer.Observed(path) {
			discovered = append(discovered, path)
		}
	}
	return discovered, nil
}
