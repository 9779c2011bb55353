// Package relay runs the per-connection loop that merges outbound change
// events with inbound write requests.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strconv"
	"sync/atomic"

	"filerelay/internal/change"
	"filerelay/internal/logging"
	"filerelay/internal/metrics"
	"filerelay/internal/wire"

	"golang.org/x/sync/errgroup"
)

const DefaultInboundQueueSize = 16

// Transport is a framed, ordered, reliable duplex stream. ReadFrame returns
// io.EOF once the peer has finished. Only the loop writes to a transport.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

type State int32

const (
	StateIdle State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

var ErrLoopReused = errors.New("relay loop already started")

type Options struct {
	BaseDir          string
	Events           <-chan change.Event
	Transport        Transport
	Logger           *logging.Logger
	Metrics          *metrics.Registry
	InboundQueueSize int
}

// Loop relays one connection. It is single-use: Idle until Run, Active while
// Run executes and Closed afterwards.
type Loop struct {
	baseDir   string
	events    <-chan change.Event
	transport Transport
	logger    *logging.Logger
	metrics   *metrics.Registry
	queueSize int
	state     atomic.Int32
}

func NewLoop(options Options) *Loop {
	queueSize := options.InboundQueueSize
	if queueSize <= 0 {
		queueSize = DefaultInboundQueueSize
	}
	return &Loop{
		baseDir:   options.BaseDir,
		events:    options.Events,
		transport: options.Transport,
		logger: options.Logger.With(map[string]string{
			"filerelay.category": "relay",
		}),
		metrics:   options.Metrics,
		queueSize: queueSize,
	}
}

func (loop *Loop) State() State {
	return State(loop.state.Load())
}

// Run relays until the peer closes the stream, a frame cannot be written, or
// ctx is cancelled. The transport is closed on return. A clean end of stream
// returns nil.
func (loop *Loop) Run(ctx context.Context) error {
	if !loop.state.CompareAndSwap(int32(StateIdle), int32(StateActive)) {
		return ErrLoopReused
	}
	defer loop.state.Store(int32(StateClosed))

	group, groupCtx := errgroup.WithContext(ctx)
	inbound := make(chan []byte, loop.queueSize)

	group.Go(guard("read", func() error {
		return loop.readFrames(groupCtx, inbound)
	}))
	group.Go(guard("merge", func() error {
		defer loop.transport.Close()
		return loop.merge(groupCtx, inbound)
	}))

	err := group.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// readFrames moves frames from the transport into the inbound queue.
func (loop *Loop) readFrames(ctx context.Context, inbound chan<- []byte) error {
	defer close(inbound)
	for {
		frame, err := loop.transport.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		loop.metrics.FrameReceived()
		select {
		case inbound <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}

// merge is the only place that writes to the transport. Select picks
// uniformly among ready cases, so neither source starves the other.
func (loop *Loop) merge(ctx context.Context, inbound <-chan []byte) error {
	events := loop.events
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := loop.send(event); err != nil {
				return err
			}
		case frame, ok := <-inbound:
			if !ok {
				return nil
			}
			if err := loop.receive(frame); err != nil {
				return err
			}
		}
	}
}

func (loop *Loop) send(event change.Event) error {
	frame, err := wire.Encode(event)
	if err != nil {
		loop.logger.Error("cannot frame change event", map[string]string{
			"kind":  event.Kind.String(),
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if err := loop.transport.WriteFrame(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	loop.metrics.FrameSent(event.Kind.String())
	if event.Kind == change.KindError {
		loop.logger.Warn("watch failure relayed", map[string]string{
			"error": errorText(event.Err),
		})
		return nil
	}
	loop.logger.Debug("change relayed", map[string]string{
		"kind": event.Kind.String(),
		"path": event.Path,
	})
	return nil
}

// receive applies one write request. Rejections are answered with an error
// frame and keep the connection open.
func (loop *Loop) receive(frame []byte) error {
	path, err := Apply(loop.baseDir, frame)
	if err == nil {
		loop.metrics.WriteApplied()
		loop.logger.Debug("write applied", map[string]string{
			"path":  path,
			"bytes": strconv.Itoa(len(frame)),
		})
		return nil
	}

	kind := KindOf(err)
	loop.metrics.WriteFailed(string(kind))
	loop.logger.Warn("write request rejected", map[string]string{
		"kind":  string(kind),
		"error": err.Error(),
	})
	if writeErr := loop.transport.WriteFrame(wire.EncodeError(err)); writeErr != nil {
		return fmt.Errorf("write error frame: %w", writeErr)
	}
	loop.metrics.FrameSent(change.KindError.String())
	return nil
}

// guard turns a panic inside a connection goroutine into an error so that one
// connection cannot take the process down.
func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("relay %s panicked: %v\n%s", name, recovered, debug.Stack())
			}
		}()
		return fn()
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
