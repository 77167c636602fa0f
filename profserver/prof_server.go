/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an optional HTTP server exposing pprof endpoints of the relay.
package profserver

import (
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-wsrelay/httpserver/middleware"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/service"
)

const readHeaderTimeout = 5 * time.Second

// ProfServer serves net/http/pprof under /debug. It implements service.Unit.
type ProfServer struct {
	srv    *http.Server
	logger log.FieldLogger
	addr   atomic.Pointer[string]
	done   chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a ProfServer. Nothing listens until Start is called.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	logger = logger.With(log.String("server", "profiling"), log.String("address", cfg.Address))
	r := chi.NewRouter()
	r.Use(middleware.RequestID(), middleware.Logging(logger))
	r.Mount("/debug", chimiddleware.Profiler())
	return &ProfServer{
		srv:    &http.Server{Addr: cfg.Address, Handler: r, ReadHeaderTimeout: readHeaderTimeout},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start listens and serves until Stop. Listen and serve errors go to fatalError.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.done)

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		s.logger.Error("profiling server failed to listen", log.Error(err))
		fatalError <- err
		return
	}
	addr := ln.Addr().String()
	s.addr.Store(&addr)
	s.logger.Info("profiling server is listening", log.String("listen_address", addr))

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("profiling server is closed")
		return
	}
	s.logger.Error("profiling server failed", log.Error(err))
	fatalError <- err
}

// Stop closes the server immediately. Profiling requests are not worth waiting for, so gracefully is ignored.
func (s *ProfServer) Stop(bool) error {
	if err := s.srv.Close(); err != nil {
		return err
	}
	<-s.done
	return nil
}

// URL returns the base URL once the server listens, and "" before that.
func (s *ProfServer) URL() string {
	if addr := s.addr.Load(); addr != nil {
		return "http://" + *addr
	}
	return ""
}
