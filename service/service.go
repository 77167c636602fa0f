/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acronis/go-wsrelay/log"
)

// DefaultShutdownSignals are the signals New subscribes to.
var DefaultShutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

type Opts struct {
	// ShutdownSignals trigger a graceful stop.
	ShutdownSignals []os.Signal
}

// Service is the top of the process: it owns the root unit and the signal subscription.
type Service struct {
	Unit    Unit
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    Opts
}

func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{ShutdownSignals: DefaultShutdownSignals})
}

func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	return &Service{Unit: unit, Logger: logger, Opts: opts, Signals: make(chan os.Signal, 1)}
}

// Start runs the service until a shutdown signal or a fatal error.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext registers the unit metrics (if it has any), starts the unit and waits.
// A canceled ctx or a shutdown signal stops the unit gracefully, and a fatal unit error is returned
// without stopping since a failed unit stops itself.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
	defer signal.Stop(s.Signals)

	unitErr := make(chan error, 1)
	go s.Unit.Start(unitErr)

	select {
	case sig := <-s.Signals:
		s.Logger.Info("service got signal", log.String("signal", sig.String()))
	case <-ctx.Done():
		s.Logger.Info("context is canceled, service will be stopped")
	case err := <-unitErr:
		s.Logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	}

	if err := s.Unit.Stop(true); err != nil {
		return fmt.Errorf("stop service gracefully: %w", err)
	}
	s.Logger.Info("service is stopped")
	return nil
}
