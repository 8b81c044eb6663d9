package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/harmoniaapp/harmonia-server/internal/logger"
	"github.com/harmoniaapp/harmonia-server/internal/task"
)

const (
	// taskCapacity bounds concurrent background jobs (cache warm-ups,
	// window extraction).
	taskCapacity = 8
	// taskTimeout bounds one background job. Full-length media pulls
	// can legitimately take minutes.
	taskTimeout = 10 * time.Minute
)

// TaskRunnerHandle wraps the task runner with Shutdownable.
type TaskRunnerHandle struct {
	*task.Runner
}

// Shutdown implements do.Shutdownable.
func (h *TaskRunnerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Runner.Shutdown(ctx)
}

// ProvideTaskRunner provides the background task runner.
func ProvideTaskRunner(i do.Injector) (*TaskRunnerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	return &TaskRunnerHandle{Runner: task.New(taskCapacity, taskTimeout, log.Logger)}, nil
}
