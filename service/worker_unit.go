/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"time"
)

// ErrWorkerStopTimeout is returned by WorkerUnit.Stop when the worker does not finish in time.
var ErrWorkerStopTimeout = errors.New("worker did not stop in time")

// WorkerUnitOpts contains optional parameters for constructing WorkerUnit.
type WorkerUnitOpts struct {
	// StopTimeout limits how long a graceful Stop waits for the worker. Zero means no limit.
	StopTimeout time.Duration
}

// WorkerUnit runs a Worker as a Unit.
// Start blocks until the worker returns, an error returned by the worker is fatal.
// Stop cancels the worker context, a graceful Stop also waits for the worker to return,
// so it must not be called gracefully on a unit that is never started.
type WorkerUnit struct {
	worker Worker
	opts   WorkerUnitOpts
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorkerUnit creates a new WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	return NewWorkerUnitWithOpts(worker, WorkerUnitOpts{})
}

// NewWorkerUnitWithOpts is a more configurable version of NewWorkerUnit.
func NewWorkerUnitWithOpts(worker Worker, opts WorkerUnitOpts) *WorkerUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerUnit{
		worker: worker,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start runs the worker.
func (u *WorkerUnit) Start(fatalError chan<- error) {
	defer close(u.done)
	if err := u.worker.Run(u.ctx); err != nil {
		fatalError <- err
	}
}

// Stop cancels the worker.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.cancel()
	if !gracefully {
		return nil
	}
	if u.opts.StopTimeout == 0 {
		<-u.done
		return nil
	}
	timer := time.NewTimer(u.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-u.done:
		return nil
	case <-timer.C:
		return ErrWorkerStopTimeout
	}
}
