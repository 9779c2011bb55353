package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"filerelay/internal/relay"
	"filerelay/internal/wire"
)

// handleWriteFile applies the request body as one inbound frame.
func (server *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, http.MethodPost)
	}

	frame, err := io.ReadAll(http.MaxBytesReader(w, r.Body, server.options.MaxFrameBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &apiError{Status: http.StatusRequestEntityTooLarge, Message: "frame exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes"}
		}
		return &apiError{Status: http.StatusBadRequest, Message: "read body: " + err.Error()}
	}
	server.metrics.FrameReceived()

	path, err := relay.Apply(server.root, frame)
	if err != nil {
		kind := relay.KindOf(err)
		server.metrics.WriteFailed(string(kind))
		server.logger.Warn("write request rejected", map[string]string{
			"kind":        string(kind),
			"error":       err.Error(),
			"remote_addr": r.RemoteAddr,
		})
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}

	server.metrics.WriteApplied()
	server.logger.Debug("write applied", map[string]string{
		"path":  path,
		"bytes": strconv.Itoa(len(frame)),
	})
	w.WriteHeader(http.StatusOK)
	return nil
}

// handlePoll long-polls the change queue. An expired wait answers with an
// empty array; a vanished client gets nothing.
func (server *Server) handlePoll(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}

	ctx, cancel := context.WithTimeout(r.Context(), server.options.PollTimeout)
	defer cancel()

	events, err := server.poller.poll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		events = nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return &apiError{Status: http.StatusServiceUnavailable, Message: err.Error()}
	}

	server.metrics.PollServed()
	for _, event := range events {
		server.metrics.FrameSent(event.Kind.String())
	}
	writeJSON(w, http.StatusOK, wire.ToPollRecords(events))
	return nil
}
