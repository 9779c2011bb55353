package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"filerelay/internal/change"
	"filerelay/internal/logging"
	"filerelay/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

const DefaultQueueSize = 256

// ErrWatchFailure tags errors that originate in the watch backend.
var ErrWatchFailure = errors.New("WatchFailure")

// Options controls a Session.
type Options struct {
	Root      string
	QueueSize int
	Logger    *logging.Logger
	Registry  *Registry
	Metrics   *metrics.Registry
	// Ignore hides matching paths from the session. Nil ignores nothing.
	Ignore *Ignore
}

// Stats reports counters for one session.
type Stats struct {
	ActiveWatches   int64
	EventsDelivered uint64
	Errors          uint64
	Restarts        uint64
}

// Session is one live watch registration on a root directory.
type Session struct {
	root       string
	logger     *logging.Logger
	metrics    *metrics.Registry
	normalizer *change.Normalizer
	ignore     *Ignore
	events     chan change.Event
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	release    func()
	closeOnce  sync.Once
	closeErr   error

	// Owned by the producer goroutine until done is closed.
	backend         *fsnotify.Watcher
	dirs            map[string]struct{}
	restartAttempts int

	activeWatches atomic.Int64
	delivered     atomic.Uint64
	errorCount    atomic.Uint64
	restarts      atomic.Uint64
}

// Open claims root in the registry, registers the directory tree and starts
// producing events. Files that already exist count as observed but are not
// reported. The caller must Close the session.
func Open(ctx context.Context, options Options) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	root, err := filepath.Abs(options.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	registry := options.Registry
	if registry == nil {
		registry = DefaultRegistry
	}
	release, err := registry.Acquire(root)
	if err != nil {
		return nil, err
	}

	backend, err := fsnotify.NewWatcher()
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrWatchFailure, err)
	}
	if err := backend.Add(root); err != nil {
		_ = backend.Close()
		release()
		return nil, fmt.Errorf("%w: watch %s: %v", ErrWatchFailure, root, err)
	}

	queueSize := options.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	derived, cancel := context.WithCancel(ctx)
	session := &Session{
		root: root,
		logger: options.Logger.With(map[string]string{
			"filerelay.category": "watcher",
			"root":               root,
		}),
		metrics:    options.Metrics,
		normalizer: change.NewNormalizer(root),
		ignore:     options.Ignore,
		events:     make(chan change.Event, queueSize),
		ctx:        derived,
		cancel:     cancel,
		done:       make(chan struct{}),
		release:    release,
		backend:    backend,
		dirs:       map[string]struct{}{root: {}},
	}
	session.activeWatches.Store(1)
	session.normalizer.Observe(session.addTree(root)...)

	go session.run()
	return session, nil
}

// Root is the absolute directory being watched.
func (session *Session) Root() string {
	return session.root
}

// Events is the bounded hand-off queue. It is closed once the session stops.
func (session *Session) Events() <-chan change.Event {
	return session.events
}

// Close stops the producer, releases the backend and the root claim.
func (session *Session) Close() error {
	session.closeOnce.Do(func() {
		session.cancel()
		<-session.done
		session.closeErr = session.backend.Close()
		session.release()
		session.logDebug("watch session closed", session.root)
	})
	return session.closeErr
}

func (session *Session) Stats() Stats {
	return Stats{
		ActiveWatches:   session.activeWatches.Load(),
		EventsDelivered: session.delivered.Load(),
		Errors:          session.errorCount.Load(),
		Restarts:        session.restarts.Load(),
	}
}

func (session *Session) run() {
	defer close(session.done)
	defer close(session.events)

	for {
		select {
		case <-session.ctx.Done():
			return
		case event, ok := <-session.backend.Events:
			if !ok {
				if !session.restart() {
					<-session.ctx.Done()
					return
				}
				continue
			}
			if !session.handle(event) {
				return
			}
		case err, ok := <-session.backend.Errors:
			if !ok {
				if !session.restart() {
					<-session.ctx.Done()
					return
				}
				continue
			}
			session.errorCount.Add(1)
			session.metrics.WatchError()
			session.logWarn("watch error", map[string]string{
				"error": err.Error(),
			})
			if !session.emit(change.Failure(fmt.Errorf("%w: %v", ErrWatchFailure, err))) {
				return
			}
		}
	}
}

func (session *Session) handle(event fsnotify.Event) bool {
	note := change.FromFSNotify(event)
	path := filepath.Clean(event.Name)
	if session.ignored(path) {
		return true
	}

	var discovered []string
	switch note.Op {
	case change.OpCreate:
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			discovered = session.addTree(path)
		}
	case change.OpRemove:
		session.dropTree(path)
	}

	if !session.emitAll(session.normalizer.Normalize(note)) {
		return false
	}
	if len(discovered) == 0 {
		return true
	}
	// Files written into a new directory before its watch existed.
	return session.emitAll(session.normalizer.Normalize(change.Notification{
		Op:    change.OpCreate,
		Paths: discovered,
	}))
}

func (session *Session) emitAll(events []change.Event) bool {
	for _, event := range events {
		if !session.emit(event) {
			return false
		}
	}
	return true
}

// emit blocks until the queue accepts the event or the session is cancelled.
func (session *Session) emit(event change.Event) bool {
	select {
	case session.events <- event:
		session.delivered.Add(1)
		return true
	case <-session.ctx.Done():
		return false
	}
}

func (session *Session) logWarn(message string, fields map[string]string) {
	session.logger.Warn(message, fields)
}

func (session *Session) logDebug(message, path string) {
	if !session.logger.Enabled(logging.LevelDebug) {
		return
	}
	session.logger.Debug(message, map[string]string{
		"path":           path,
		"active_watches": strconv.FormatInt(session.activeWatches.Load(), 10),
	})
}
