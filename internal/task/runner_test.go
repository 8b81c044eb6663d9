package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(capacity int) *Runner {
	return New(capacity, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGoRunsTask(t *testing.T) {
	r := newTestRunner(2)
	done := make(chan struct{})

	err := r.Go("test", func(context.Context) error {
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestGoRejectsAtCapacity(t *testing.T) {
	r := newTestRunner(1)
	release := make(chan struct{})

	require.NoError(t, r.Go("hold", func(context.Context) error {
		<-release
		return nil
	}))

	assert.Eventually(t, func() bool { return r.Active() == 1 },
		time.Second, time.Millisecond)

	err := r.Go("extra", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	assert.Eventually(t, func() bool { return r.Active() == 0 },
		time.Second, time.Millisecond)

	assert.NoError(t, r.Go("after", func(context.Context) error { return nil }))
}

func TestFailuresAreSwallowed(t *testing.T) {
	r := newTestRunner(1)
	ran := make(chan struct{})

	require.NoError(t, r.Go("fails", func(context.Context) error {
		close(ran)
		return errors.New("boom")
	}))
	<-ran

	// the runner stays usable after a failure
	assert.Eventually(t, func() bool {
		return r.Go("next", func(context.Context) error { return nil }) == nil
	}, time.Second, time.Millisecond)
}

func TestShutdownDrainsTasks(t *testing.T) {
	r := newTestRunner(2)
	var finished atomic.Bool

	require.NoError(t, r.Go("slow", func(context.Context) error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	assert.True(t, finished.Load())

	err := r.Go("late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdownCancelsTaskContexts(t *testing.T) {
	r := newTestRunner(1)
	cancelled := make(chan struct{})

	require.NoError(t, r.Go("watch", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled")
	}
}
