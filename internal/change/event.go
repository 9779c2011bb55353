// Package change turns raw filesystem notifications into the relay's closed
// set of change events.
package change

import "fmt"

type Kind int

const (
	KindCreate Kind = iota + 1
	KindUpdate
	KindDelete
	// KindError carries a watch failure that is reported to the peer instead
	// of terminating the session.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a normalized change. Content is only set for create and update
// and is whatever was on disk when the notification was handled.
type Event struct {
	Kind    Kind
	Path    string
	Content []byte
	Err     error
}

func Create(path string, content []byte) Event {
	return Event{Kind: KindCreate, Path: path, Content: content}
}

func Update(path string, content []byte) Event {
	return Event{Kind: KindUpdate, Path: path, Content: content}
}

func Delete(path string) Event {
	return Event{Kind: KindDelete, Path: path}
}

func Failure(err error) Event {
	return Event{Kind: KindError, Err: err}
}
