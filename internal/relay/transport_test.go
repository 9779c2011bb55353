package relay

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

var errPipeClosed = errors.New("pipe closed")

// pipeTransport is an in-memory Transport. The test writes peer frames into
// toLoop and reads relayed frames from fromLoop.
type pipeTransport struct {
	toLoop    chan []byte
	fromLoop  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	writeErr  error
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		toLoop:   make(chan []byte),
		fromLoop: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (p *pipeTransport) ReadFrame() ([]byte, error) {
	select {
	case frame, ok := <-p.toLoop:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-p.closed:
		return nil, errPipeClosed
	}
}

func (p *pipeTransport) WriteFrame(frame []byte) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	select {
	case p.fromLoop <- frame:
		return nil
	case <-p.closed:
		return errPipeClosed
	}
}

func (p *pipeTransport) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}

func (p *pipeTransport) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *pipeTransport) send(t *testing.T, frame string) {
	t.Helper()
	select {
	case p.toLoop <- []byte(frame):
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not accept frame %q", frame)
	}
}

func (p *pipeTransport) next(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-p.fromLoop:
		return string(frame)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return ""
	}
}
