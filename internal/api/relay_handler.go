package api

import (
	"errors"
	"net/http"

	"filerelay/internal/relay"
	"filerelay/internal/watcher"

	"github.com/gorilla/websocket"
)

// handleRelay serves one peer. The watch session is opened before the
// upgrade so a busy root is refused with a plain 503.
func (server *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Upgrade", "websocket")
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}

	session, err := server.openSession()
	if err != nil {
		status := http.StatusInternalServerError
		message := "open watch session failed"
		if errors.Is(err, watcher.ErrRootBusy) {
			status = http.StatusServiceUnavailable
			message = "root is already relayed to another peer"
			server.metrics.ConnectionRejected()
		}
		writeWSError(w, r, nil, server.logger, wsError{Status: status, Message: message, Err: err})
		return
	}
	defer session.Close()

	conn, err := upgradeWebSocket(w, r, server.options.AllowedOrigins)
	if err != nil {
		logWSError(server.logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}

	if !server.track() {
		writeWSError(w, r, conn, server.logger, wsError{Status: http.StatusServiceUnavailable, Message: "server shutting down"})
		return
	}
	defer server.connections.Done()
	server.metrics.ConnectionOpened()
	defer server.metrics.ConnectionClosed()

	logger := server.logger.With(map[string]string{"remote_addr": r.RemoteAddr})
	logger.Info("peer connected", map[string]string{"root": session.Root()})

	transport := newWSTransport(conn, server.options.MaxFrameBytes)
	defer transport.Close()

	loop := relay.NewLoop(relay.Options{
		BaseDir:   session.Root(),
		Events:    session.Events(),
		Transport: transport,
		Logger:    logger,
		Metrics:   server.metrics,
	})
	if err := loop.Run(server.ctx); err != nil {
		logger.Warn("peer connection closed with error", map[string]string{"error": err.Error()})
		return
	}
	logger.Info("peer disconnected", nil)
}
