/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/acronis/go-wsrelay/log"
)

// ErrStopPeriodic may be returned by a worker run by PeriodicWorker to end the loop.
var ErrStopPeriodic = errors.New("stop periodic worker")

// Worker performs some (usually long-running) work until ctx is canceled.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// InitialDelay is waited before the first run. Zero means the first run happens immediately.
	InitialDelay time.Duration
	// ErrorInterval replaces the regular interval after a failed run. Zero means the regular interval.
	ErrorInterval time.Duration
}

// PeriodicWorker runs another worker again and again with a pause between runs.
// Errors of single runs are logged and do not stop the loop.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	logger   log.FieldLogger
	opts     PeriodicWorkerOpts
}

// NewPeriodicWorker creates a new PeriodicWorker.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, interval, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts is a more configurable version of NewPeriodicWorker.
func NewPeriodicWorkerWithOpts(worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts) *PeriodicWorker {
	if opts.ErrorInterval == 0 {
		opts.ErrorInterval = interval
	}
	return &PeriodicWorker{worker: worker, interval: interval, logger: logger, opts: opts}
}

// Run implements Worker. It returns nil when ctx is canceled or the worker returns ErrStopPeriodic.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	pw.logger.Debug("periodic worker started",
		log.Duration("interval", pw.interval), log.Duration("initial_delay", pw.opts.InitialDelay))
	defer pw.logger.Debug("periodic worker stopped")

	timer := time.NewTimer(pw.opts.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		next := pw.interval
		if err := pw.runOnce(ctx); err != nil {
			if errors.Is(err, ErrStopPeriodic) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			pw.logger.Error("periodic worker run failed", log.Error(err))
			next = pw.opts.ErrorInterval
		}
		timer.Reset(next)
	}
}

func (pw *PeriodicWorker) runOnce(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			pw.logger.Error(fmt.Sprintf("panic in periodic worker: %+v", p), log.String("stack", string(debug.Stack())))
			panic(p)
		}
	}()
	return pw.worker.Run(ctx)
}
