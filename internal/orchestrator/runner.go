package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrRunInProgress is returned by Runner.Start while a run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// RunFunc performs one full run.
type RunFunc func(ctx context.Context) (Report, error)

// Runner serialises background runs and keeps the latest report.
type Runner struct {
	base   context.Context
	run    RunFunc
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	latest  *Report
	lastErr error
	wg      sync.WaitGroup
}

// NewRunner returns a Runner whose runs are bound to base.
func NewRunner(base context.Context, run RunFunc, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{base: base, run: run, logger: logger.Named("runner")}
}

// Start launches a run in the background or returns ErrRunInProgress.
func (r *Runner) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunInProgress
	}
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		report, err := r.run(r.base)
		if err != nil {
			r.logger.Error("run failed", zap.String("run_id", report.RunID), zap.Error(err))
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		r.running = false
		r.lastErr = err
		if report.RunID != "" {
			r.latest = &report
		}
	}()
	return nil
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Latest returns the most recent report, if any run produced one.
func (r *Runner) Latest() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return Report{}, false
	}
	return *r.latest, true
}

// LastError returns the error the most recent run ended with.
func (r *Runner) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Wait blocks until the active run, if any, finishes.
func (r *Runner) Wait() {
	r.wg.Wait()
}
