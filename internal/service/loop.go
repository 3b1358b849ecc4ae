// ABOUTME: Adapts a blocking run function into a startable, stoppable Service
// ABOUTME: Used for tickers and watchers that live for as long as their context

package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// RunFunc runs until ctx is cancelled. Returning context.Canceled (or nil)
// after cancellation is a clean exit.
type RunFunc func(ctx context.Context) error

// Loop is a Service backed by a goroutine running a RunFunc.
type Loop struct {
	name   string
	run    RunFunc
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewLoop creates a Loop service.
func NewLoop(name string, run RunFunc, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		name:   name,
		run:    run,
		logger: logger.With("service", name),
	}
}

// Name returns the service name.
func (l *Loop) Name() string { return l.name }

// Running reports whether the run function is still executing.
func (l *Loop) Running() bool {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Start launches the run function. The loop outlives ctx; only Stop ends it.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		select {
		case <-l.done:
		default:
			return ErrAlreadyRunning
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.lastErr = nil

	go func() {
		defer close(done)
		err := l.run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("service loop exited", "error", err)
			l.mu.Lock()
			l.lastErr = err
			l.mu.Unlock()
		}
	}()
	return nil
}

// Stop cancels the run function and waits for it to return or ctx to expire.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if done == nil {
		return ErrNotRunning
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error the last run ended with, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}
