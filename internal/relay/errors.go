package relay

import (
	"errors"
	"fmt"

	"filerelay/internal/pathsafe"
	"filerelay/internal/wire"
)

// ErrorKind names a request-scoped failure.
type ErrorKind string

const (
	KindNoNewline   ErrorKind = "NoNewlineToSeparatePath"
	KindInvalidPath ErrorKind = "InvalidPath"
	KindIOFailure   ErrorKind = "IOFailure"
)

// ErrProtocol marks failures that leave the connection unusable.
var ErrProtocol = errors.New("protocol error")

// RequestError rejects a single write request. The connection and the watch
// pipeline are unaffected.
type RequestError struct {
	Kind ErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRequestError reports whether err only affects the request that caused it.
func IsRequestError(err error) bool {
	var requestErr *RequestError
	return errors.As(err, &requestErr)
}

// KindOf returns the request error kind of err, or "" for other errors.
func KindOf(err error) ErrorKind {
	var requestErr *RequestError
	if errors.As(err, &requestErr) {
		return requestErr.Kind
	}
	return ""
}

func classifyDecode(err error) error {
	switch {
	case errors.Is(err, wire.ErrNoNewlineToSeparatePath):
		return &RequestError{Kind: KindNoNewline, Err: err}
	case errors.Is(err, pathsafe.ErrInvalidPath):
		return &RequestError{Kind: KindInvalidPath, Err: err}
	default:
		return &RequestError{Kind: KindIOFailure, Err: fmt.Errorf("decode frame: %w", err)}
	}
}
