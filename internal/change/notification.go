package change

import "github.com/fsnotify/fsnotify"

// Op classifies a raw notification.
type Op int

const (
	OpOther Op = iota
	OpCreate
	OpModify
	OpRemove
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpRemove:
		return "remove"
	default:
		return "other"
	}
}

// Notification is a raw watch notification naming one or more paths.
type Notification struct {
	Op    Op
	Paths []string
}

// FromFSNotify classifies an fsnotify event. A rename reports the old name,
// so it is treated as a removal; the new name arrives as a separate create.
func FromFSNotify(event fsnotify.Event) Notification {
	op := OpOther
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpRemove
	}
	return Notification{Op: op, Paths: []string{event.Name}}
}
