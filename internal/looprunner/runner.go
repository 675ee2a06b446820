// Package looprunner factors out the start/stop/close/isRunning lifecycle
// shared by the buffer loop and the playback loop (spec.md §4.4/§4.5 give
// both the same three-method shape: start(callbacks), stop() [cancel and
// join], close() [cancel without joining]).
//
// This mirrors the "owned task handle plus a cancellation token" mapping
// spec.md §9 calls out for coroutine-driven loops, built from
// context.Context and a done channel the way internal/player/player.go
// pairs a done channel with speaker.Play's completion callback in the
// teacher repository.
package looprunner

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyRunning is returned by Start when the loop is already running.
var ErrAlreadyRunning = errors.New("looprunner: already running")

// Runner drives one instance of a cancellable background task.
type Runner struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Start launches run in its own goroutine under a fresh cancellable
// context. onDone is invoked exactly once after run returns:
//   - if run returned nil, onDone(nil) reports normal completion.
//   - if run returned a non-cancellation error, onDone(err) reports failure.
//   - if run returned because ctx was canceled, onDone is not called at
//     all — cancellation unwinds silently, per spec.md §7.
//
// onDone runs on a fresh goroutine, so a failure reported by a producer
// never synchronously re-enters the caller of Start (spec.md §4.4).
func (r *Runner) Start(run func(ctx context.Context) error, onDone func(err error)) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.running = true
	r.mu.Unlock()

	go func() {
		err := run(ctx)

		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(done)

		if errors.Is(err, context.Canceled) {
			return
		}
		if onDone != nil {
			go onDone(err)
		}
	}()
	return nil
}

// Stop cancels the running task and blocks until it has fully terminated.
// A no-op if nothing is running.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close cancels the running task without waiting for it to terminate.
// Idempotent, and safe to call when nothing is running.
func (r *Runner) Close() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Running reports whether a task is currently in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
