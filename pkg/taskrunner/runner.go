// Package taskrunner executes fire-and-forget tasks on their own
// goroutines. Dispatch hands trigger handlers to a Runner and never
// waits for them; the runner tracks what is in flight so shutdown can
// drain gracefully.
package taskrunner

import (
	"context"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Task is one unit of work, usually a plugin handler bound to an
// event.
type Task func(ctx context.Context) error

// Runner tracks spawned tasks until completion. Tasks are not ordered
// against each other, and panics are recovered at the task boundary
// so a faulting handler cannot take the process down.
type Runner struct {
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]string
}

// New creates a task runner.
func New(logger zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger: logger.With().Str("component", "taskrunner").Logger(),
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]string),
	}
}

// Spawn starts a task and returns its id without waiting for it.
func (r *Runner) Spawn(name string, task Task) string {
	id, _ := gonanoid.New()

	r.mu.Lock()
	r.active[id] = name
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(id, name, task)

	return id
}

func (r *Runner) run(id, name string, task Task) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.active, id)
		r.mu.Unlock()
	}()

	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("taskId", id).
				Str("task", name).
				Dur("duration", time.Since(start)).
				Interface("panic", rec).
				Msg("Task panicked")
		}
	}()

	if err := task(r.ctx); err != nil {
		r.logger.Error().
			Str("taskId", id).
			Str("task", name).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("Task failed")
		return
	}

	r.logger.Debug().
		Str("taskId", id).
		Str("task", name).
		Dur("duration", time.Since(start)).
		Msg("Task completed")
}

// ActiveCount returns the number of tasks still running.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// WaitForActive waits for all active tasks to complete with timeout.
func (r *Runner) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if r.ActiveCount() == 0 {
			r.logger.Info().Msg("All active tasks completed")
			return true
		}

		if time.Now().After(deadline) {
			r.logger.Warn().
				Dur("timeout", timeout).
				Int("active", r.ActiveCount()).
				Msg("Timeout waiting for active tasks")
			return false
		}

		<-ticker.C
	}
}

// Close cancels the runner context and waits for in-flight tasks to
// return.
func (r *Runner) Close() error {
	r.cancel()
	r.wg.Wait()
	return nil
}
