// Package task runs fire-and-forget background work with a bounded
// concurrency budget and a clean shutdown path. Cache warm-ups and
// other speculative jobs go through here instead of bare goroutines so
// they are counted, logged, and drained on exit.
package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBusy is returned when the runner is at capacity.
var ErrBusy = errors.New("task runner at capacity")

// ErrShuttingDown is returned once Shutdown has begun.
var ErrShuttingDown = errors.New("task runner shutting down")

// Runner executes named background tasks.
type Runner struct {
	log     *slog.Logger
	slots   chan struct{}
	timeout time.Duration

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a runner allowing up to capacity concurrent tasks. Each
// task gets a context detached from its submitter, bounded by timeout,
// and cancelled on Shutdown.
func New(capacity int, timeout time.Duration, log *slog.Logger) *Runner {
	if capacity <= 0 {
		capacity = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		log:     log,
		slots:   make(chan struct{}, capacity),
		timeout: timeout,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Go submits a task. It returns ErrBusy without blocking when all
// slots are taken: background work is speculative and a busy system
// should not queue more of it. Task failures are logged centrally.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrShuttingDown
	}
	select {
	case r.slots <- struct{}{}:
	default:
		r.mu.Unlock()
		return ErrBusy
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer func() {
			<-r.slots
			r.wg.Done()
		}()

		ctx := r.baseCtx
		var cancel context.CancelFunc = func() {}
		if r.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			r.log.Error("background task failed",
				"task", name, "duration", time.Since(start), "error", err)
			return
		}
		r.log.Debug("background task finished", "task", name, "duration", time.Since(start))
	}()
	return nil
}

// Active returns the number of running tasks.
func (r *Runner) Active() int {
	return len(r.slots)
}

// Shutdown stops accepting tasks, cancels running ones, and waits for
// them to drain or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
