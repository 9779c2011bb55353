package api

import (
	"context"
	"errors"

	"filerelay/internal/change"
	"filerelay/internal/watcher"
)

var errPollerClosed = errors.New("watch session closed")

// poller hands the long-lived session's queue to one poll request at a time.
type poller struct {
	session *watcher.Session
	slot    chan struct{}
}

func newPoller(session *watcher.Session) *poller {
	return &poller{session: session, slot: make(chan struct{}, 1)}
}

// poll blocks until at least one event is queued, then returns it together
// with every event already buffered behind it. Events arriving later are
// left for the next poll.
func (p *poller) poll(ctx context.Context) ([]change.Event, error) {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slot }()

	events := p.session.Events()
	var first change.Event
	select {
	case event, ok := <-events:
		if !ok {
			return nil, errPollerClosed
		}
		first = event
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	buffered := len(events)
	batch := make([]change.Event, 0, buffered+1)
	batch = append(batch, first)
	for i := 0; i < buffered; i++ {
		event, ok := <-events
		if !ok {
			break
		}
		batch = append(batch, event)
	}
	return batch, nil
}

func (p *poller) close() error {
	return p.session.Close()
}
