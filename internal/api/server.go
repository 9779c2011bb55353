// Package api exposes the relay over HTTP: a full-duplex websocket binding
// and a request/response binding with long-poll.
package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"filerelay/internal/config"
	"filerelay/internal/logging"
	"filerelay/internal/metrics"
	"filerelay/internal/watcher"
)

type Options struct {
	Root           string
	Transport      config.Transport
	QueueSize      int
	PollTimeout    time.Duration
	MaxFrameBytes  int64
	AllowedOrigins []string
	Ignore         []string
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	Registry       *watcher.Registry
}

// Server owns the watch sessions behind the routes it registers. The
// websocket binding opens one session per connection and refuses a second
// peer while one is connected. The HTTP binding has no connection to scope a
// session to, so it keeps one session for the lifetime of the Server.
type Server struct {
	options     Options
	root        string
	logger      *logging.Logger
	metrics     *metrics.Registry
	ctx         context.Context
	cancel      context.CancelFunc
	ignore      *watcher.Ignore
	poller      *poller
	mu          sync.Mutex
	closed      bool
	connections sync.WaitGroup
	closeOnce   sync.Once
}

func NewServer(options Options) (*Server, error) {
	root, err := filepath.Abs(options.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if options.Transport == "" {
		options.Transport = config.TransportWebSocket
	}
	if options.QueueSize <= 0 {
		options.QueueSize = watcher.DefaultQueueSize
	}
	if options.PollTimeout <= 0 {
		options.PollTimeout = config.DefaultPollTimeout
	}
	if options.MaxFrameBytes <= 0 {
		options.MaxFrameBytes = config.DefaultMaxFrameBytes
	}
	if options.Registry == nil {
		options.Registry = watcher.DefaultRegistry
	}
	if options.Metrics == nil {
		options.Metrics = metrics.Default
	}

	ignore, err := watcher.CompileIgnore(options.Ignore)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		options: options,
		root:    root,
		logger: options.Logger.With(map[string]string{
			"filerelay.category": "api",
		}),
		metrics: options.Metrics,
		ignore:  ignore,
		ctx:     ctx,
		cancel:  cancel,
	}

	if options.Transport == config.TransportHTTP {
		session, err := server.openSession()
		if err != nil {
			cancel()
			return nil, err
		}
		server.poller = newPoller(session)
	}
	return server, nil
}

// Register mounts the routes of the configured binding on mux.
func (server *Server) Register(mux *http.ServeMux) {
	mux.Handle("/healthz", loggingMiddleware(server.logger, http.HandlerFunc(server.handleHealth)))
	mux.Handle("/metrics", loggingMiddleware(server.logger, http.HandlerFunc(server.handleMetrics)))

	switch server.options.Transport {
	case config.TransportHTTP:
		mux.Handle("/write_file", loggingMiddleware(server.logger, textHandler(server.handleWriteFile)))
		mux.Handle("/poll", loggingMiddleware(server.logger, jsonHandler(server.handlePoll)))
	default:
		mux.Handle("/", loggingMiddleware(server.logger, http.HandlerFunc(server.handleRelay)))
	}
}

// Close ends every relay loop, waits for connection handlers to finish and
// releases the long-poll session.
func (server *Server) Close(ctx context.Context) error {
	var err error
	server.closeOnce.Do(func() {
		server.mu.Lock()
		server.closed = true
		server.mu.Unlock()
		server.cancel()

		done := make(chan struct{})
		go func() {
			server.connections.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("wait for relay connections: %w", ctx.Err())
		}

		if server.poller != nil {
			if closeErr := server.poller.close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}
	})
	return err
}

// track registers a live connection so Close can wait for it. It fails once
// Close has started.
func (server *Server) track() bool {
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.closed {
		return false
	}
	server.connections.Add(1)
	return true
}

func (server *Server) openSession() (*watcher.Session, error) {
	return watcher.Open(server.ctx, watcher.Options{
		Root:      server.root,
		QueueSize: server.options.QueueSize,
		Logger:    server.options.Logger,
		Registry:  server.options.Registry,
		Metrics:   server.metrics,
		Ignore:    server.ignore,
	})
}

func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (server *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = server.metrics.WritePrometheus(w)
}
