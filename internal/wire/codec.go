// Package wire implements the relay's byte framing.
//
// Outbound frames carry one change event:
//
//	'c' path '\n' content   create
//	'u' path '\n' content   update
//	'd' path                delete
//	'e' message             watch or request failure
//
// Inbound frames carry one write request: relative path '\n' content.
// There are no length prefixes; the first '\n' is the only separator.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"filerelay/internal/change"
	"filerelay/internal/pathsafe"
)

const (
	TagCreate byte = 'c'
	TagUpdate byte = 'u'
	TagDelete byte = 'd'
	TagError  byte = 'e'

	separator byte = '\n'
)

var (
	ErrNoNewlineToSeparatePath = errors.New("NoNewlineToSeparatePath")
	ErrInvalidPath             = pathsafe.ErrInvalidPath
	// ErrAmbiguousPath means a path contains the separator byte and cannot
	// be framed without corrupting the stream.
	ErrAmbiguousPath = errors.New("path contains newline")
)

// WriteRequest is one inbound frame.
type WriteRequest struct {
	RelativePath string
	Content      []byte
}

// Encode builds the outbound frame for an event.
func Encode(event change.Event) ([]byte, error) {
	switch event.Kind {
	case change.KindCreate:
		return encodeContent(TagCreate, event.Path, event.Content)
	case change.KindUpdate:
		return encodeContent(TagUpdate, event.Path, event.Content)
	case change.KindDelete:
		if err := checkPath(event.Path); err != nil {
			return nil, err
		}
		frame := make([]byte, 0, 1+len(event.Path))
		frame = append(frame, TagDelete)
		return append(frame, event.Path...), nil
	case change.KindError:
		return EncodeError(event.Err), nil
	default:
		return nil, fmt.Errorf("encode event: unknown kind %v", event.Kind)
	}
}

// EncodeError builds an error frame. A nil error yields a bare tag.
func EncodeError(err error) []byte {
	if err == nil {
		return []byte{TagError}
	}
	message := err.Error()
	frame := make([]byte, 0, 1+len(message))
	frame = append(frame, TagError)
	return append(frame, message...)
}

func encodeContent(tag byte, path string, content []byte) ([]byte, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	frame := make([]byte, 0, 2+len(path)+len(content))
	frame = append(frame, tag)
	frame = append(frame, path...)
	frame = append(frame, separator)
	return append(frame, content...), nil
}

func checkPath(path string) error {
	if strings.IndexByte(path, separator) >= 0 {
		return fmt.Errorf("%w: %q", ErrAmbiguousPath, path)
	}
	return nil
}

// Decode parses an inbound frame. The returned content aliases frame.
func Decode(frame []byte) (WriteRequest, error) {
	index := bytes.IndexByte(frame, separator)
	if index < 0 {
		return WriteRequest{}, ErrNoNewlineToSeparatePath
	}
	path := frame[:index]
	if !utf8.Valid(path) {
		return WriteRequest{}, fmt.Errorf("%w: path is not valid utf-8", ErrInvalidPath)
	}
	return WriteRequest{
		RelativePath: string(path),
		Content:      frame[index+1:],
	}, nil
}
