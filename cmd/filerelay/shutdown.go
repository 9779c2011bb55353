package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"filerelay/internal/logging"
)

// watchShutdownSignals cancels shutdown on the first signal and logs, once,
// that later signals are ignored. The returned func stops the watcher.
func watchShutdownSignals(logger *logging.Logger, cancel context.CancelFunc, signals <-chan os.Signal) func() {
	if signals == nil {
		return func() {}
	}

	done := make(chan struct{})
	var received atomic.Int32
	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				fields := map[string]string{}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				switch received.Add(1) {
				case 1:
					logger.Info("shutdown signal received", fields)
					if cancel != nil {
						cancel()
					}
				case 2:
					logger.Info("shutdown already in progress; ignoring signal", fields)
				}
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() { close(done) })
	}
}

type shutdownStep struct {
	name string
	stop func(context.Context) error
}

// shutdownCoordinator stops components in registration order. Every step
// runs even when an earlier one fails.
type shutdownCoordinator struct {
	logger *logging.Logger
	once   sync.Once
	steps  []shutdownStep
}

func newShutdownCoordinator(logger *logging.Logger) *shutdownCoordinator {
	return &shutdownCoordinator{logger: logger}
}

func (coordinator *shutdownCoordinator) Add(name string, stop func(context.Context) error) {
	if stop == nil {
		return
	}
	coordinator.steps = append(coordinator.steps, shutdownStep{name: name, stop: stop})
}

// Run executes the steps once; later calls return nil.
func (coordinator *shutdownCoordinator) Run(ctx context.Context) error {
	var errs []error
	coordinator.once.Do(func() {
		for _, step := range coordinator.steps {
			coordinator.logger.Info("shutdown phase starting", map[string]string{"phase": step.name})
			if err := step.stop(ctx); err != nil {
				coordinator.logger.Warn("shutdown phase failed", map[string]string{
					"phase": step.name,
					"error": err.Error(),
				})
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
