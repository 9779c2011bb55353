package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"filerelay/internal/api"
)

const httpServerShutdownTimeout = 5 * time.Second

func listen(address string) (net.Listener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	if _, ok := listener.Addr().(*net.TCPAddr); !ok {
		_ = listener.Close()
		return nil, fmt.Errorf("unexpected listener address: %T", listener.Addr())
	}
	return listener, nil
}

func newHTTPServer(server *api.Server) *http.Server {
	mux := http.NewServeMux()
	server.Register(mux)
	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serve runs httpServer until stop is cancelled or serving fails, then runs
// the shutdown phases.
func serve(stop context.Context, httpServer *http.Server, listener net.Listener, coordinator *shutdownCoordinator) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server stopped: %w", err)
		}
	case <-stop.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), httpServerShutdownTimeout)
	defer cancel()
	if err := coordinator.Run(ctx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}
