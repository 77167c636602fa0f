/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"strings"
	"sync"
)

// CompositeUnit runs several units as one.
type CompositeUnit struct {
	Units []Unit

	// StopInOrder stops units one after another in the listed order instead of all at once.
	// The relay relies on it to stop accepting clients before dropping the upstream.
	StopInOrder bool
}

var _ MetricsRegisterer = (*CompositeUnit)(nil)

func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

func NewOrderedCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units, StopInOrder: true}
}

// Start starts all units concurrently and returns when every Start has returned.
// The first fatal error stops all units non-gracefully, then a CompositeUnitError holding
// the fatal errors and the stop errors is sent to fatalError.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	unitErrs := make([]chan error, len(cu.Units))
	failed := make(chan struct{}, len(cu.Units))
	var wg sync.WaitGroup
	for i, u := range cu.Units {
		unitErrs[i] = make(chan error, 1)
		wg.Add(1)
		go func(u Unit, errCh chan error) {
			defer wg.Done()
			u.Start(errCh)
			if len(errCh) != 0 {
				failed <- struct{}{}
			}
		}(u, unitErrs[i])
	}
	allReturned := make(chan struct{})
	go func() {
		wg.Wait()
		close(allReturned)
	}()

	select {
	case <-allReturned:
		if len(failed) == 0 {
			return
		}
	case <-failed:
	}

	stopErr := cu.Stop(false)
	var errs []error
	for _, errCh := range unitErrs {
		select {
		case err := <-errCh:
			errs = append(errs, err)
		default:
		}
	}
	var cuErr *CompositeUnitError
	if errors.As(stopErr, &cuErr) {
		errs = append(errs, cuErr.UnitErrors...)
	}
	if len(errs) != 0 {
		fatalError <- &CompositeUnitError{UnitErrors: errs}
	}
}

// Stop stops the units (see StopInOrder) and returns a CompositeUnitError if any of them failed to stop.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errs := make([]error, len(cu.Units))
	if cu.StopInOrder {
		for i, u := range cu.Units {
			errs[i] = u.Stop(gracefully)
		}
	} else {
		var wg sync.WaitGroup
		for i, u := range cu.Units {
			wg.Add(1)
			go func(i int, u Unit) {
				defer wg.Done()
				errs[i] = u.Stop(gracefully)
			}(i, u)
		}
		wg.Wait()
	}
	return newCompositeUnitError(errs)
}

func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError collects errors of several units.
type CompositeUnitError struct {
	UnitErrors []error
}

// newCompositeUnitError drops nil errors and returns nil if nothing is left.
func newCompositeUnitError(errs []error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return &CompositeUnitError{UnitErrors: nonNil}
}

func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, len(cue.UnitErrors))
	for i, err := range cue.UnitErrors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
