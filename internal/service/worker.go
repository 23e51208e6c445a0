package service

import (
	"context"
	"sync"

	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/infrastructure/metrics"
)

// TaskRunner runs one background task per job id. Each task gets its own context,
// cancelled by Cancel (job deleted) or Shutdown (process exiting).
type TaskRunner struct {
	base   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	tasks  map[int64]context.CancelFunc
	wg     sync.WaitGroup
	logger *logger.Logger
}

func NewTaskRunner(log *logger.Logger) *TaskRunner {
	base, stop := context.WithCancel(context.Background())
	return &TaskRunner{
		base:   base,
		stop:   stop,
		tasks:  make(map[int64]context.CancelFunc),
		logger: log.Component("runner"),
	}
}

// Submit starts fn for jobID. It returns false when a task for that id is already
// running or the runner is shutting down.
func (r *TaskRunner) Submit(jobID int64, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.base.Err() != nil {
		return false
	}
	if _, running := r.tasks[jobID]; running {
		return false
	}

	ctx, cancel := context.WithCancel(r.base)
	r.tasks[jobID] = cancel
	r.wg.Add(1)
	metrics.JobStarted()

	go func() {
		defer r.wg.Done()
		defer metrics.JobStopped()
		defer r.forget(jobID)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.WithJob(jobID).Errorf("task panicked: %v", rec)
			}
		}()
		fn(ctx)
	}()
	return true
}

// Cancel signals the task for jobID to stop. It does not wait for it.
func (r *TaskRunner) Cancel(jobID int64) bool {
	r.mu.Lock()
	cancel, ok := r.tasks[jobID]
	r.mu.Unlock()

	if ok {
		cancel()
		r.logger.WithJob(jobID).Info("cancellation requested")
	}
	return ok
}

func (r *TaskRunner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Shutdown cancels every task and waits for them until ctx expires.
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.stop()

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

func (r *TaskRunner) forget(jobID int64) {
	r.mu.Lock()
	delete(r.tasks, jobID)
	r.mu.Unlock()
}
