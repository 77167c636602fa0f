/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-wsrelay/httpserver/middleware"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/service"
)

type Opts struct {
	// ErrorDomain is put into JSON error bodies.
	ErrorDomain string
	// Routes mounts the application endpoints.
	Routes func(router chi.Router)
	// ReadinessCheck backs /readyz. Nil always reports ready.
	ReadinessCheck CheckFunc
	// MetricsNamespace prefixes the HTTP request metrics.
	MetricsNamespace string
	// Listener is used instead of listening on Config.Address, mostly in tests.
	Listener net.Listener
}

// HTTPServer is an http.Server run as a service.Unit.
type HTTPServer struct {
	// URL is the configured base URL. With port 0 in the address use GetPort to learn the real one.
	URL             string
	HTTPServer      *http.Server
	TLS             TLSConfig
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	limits         LimitsConfig
	listener       net.Listener
	port           atomic.Int32
	done           atomic.Pointer[chan struct{}]
	requestMetrics *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates the server for the application routes. Requests get ids, logging, metrics and panic recovery,
// and /healthz with /readyz are added to the routes.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer {
	metrics := middleware.NewHTTPRequestMetricsCollector(opts.MetricsNamespace)
	s := newWithHandler("application", cfg, logger, newRouter(cfg, logger, opts, metrics), opts.Listener)
	s.requestMetrics = metrics
	return s
}

func newWithHandler(name string, cfg *Config, logger log.FieldLogger, h http.Handler, ln net.Listener) *HTTPServer {
	url := "http://" + cfg.Address
	if cfg.TLS.Enabled {
		url = "https://" + cfg.Address
	}
	return &HTTPServer{
		URL: url,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           h,
			ReadTimeout:       cfg.Timeouts.Read.Duration(),
			ReadHeaderTimeout: cfg.Timeouts.ReadHeader.Duration(),
			WriteTimeout:      cfg.Timeouts.Write.Duration(),
			IdleTimeout:       cfg.Timeouts.Idle.Duration(),
		},
		TLS:             cfg.TLS,
		Logger:          logger.With(log.String("server", name)),
		ShutdownTimeout: cfg.Timeouts.Shutdown.Duration(),
		limits:          cfg.Limits,
		listener:        ln,
	}
}

// Start serves until Stop. It blocks, so it is run in its own goroutine; failures go to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.done.Store(&done)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	ln, err := s.listen(logger)
	if err != nil {
		logger.Error("HTTP server failed to listen", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("HTTP server is listening",
		log.Int("port", s.GetPort()),
		log.Bool("tls", s.TLS.Enabled),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
	)

	if s.TLS.Enabled {
		err = s.HTTPServer.ServeTLS(ln, s.TLS.Certificate, s.TLS.Key)
	} else {
		err = s.HTTPServer.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("HTTP server is closed")
		return
	}
	logger.Error("HTTP server failed", log.Error(err))
	fatalError <- err
}

func (s *HTTPServer) listen(logger log.FieldLogger) (net.Listener, error) {
	ln := s.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			return nil, err
		}
		s.listener = ln
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(addr.Port)) //nolint:gosec // ports fit int32
	}
	if s.limits.AcceptRate > 0 {
		logger.Info("accepting connections with rate limit",
			log.Float64("accept_rate", s.limits.AcceptRate), log.Int("accept_burst", s.limits.AcceptBurst))
		ln = newThrottledListener(ln, s.limits.AcceptRate, s.limits.AcceptBurst)
	}
	return ln, nil
}

// Stop closes the listener. A graceful stop waits up to ShutdownTimeout for in-flight requests.
// Upgraded websocket connections are hijacked, so http.Server does not wait for them and their owners close them.
func (s *HTTPServer) Stop(gracefully bool) error {
	if gracefully {
		ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		s.Logger.Info("shutting down HTTP server", log.Duration("timeout", s.ShutdownTimeout))
		if err := s.HTTPServer.Shutdown(ctx); err != nil {
			s.Logger.Error("HTTP server shutdown failed", log.Error(err))
			return err
		}
	} else if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("HTTP server close failed", log.Error(err))
		return err
	}
	if done := s.done.Load(); done != nil {
		<-*done
	}
	return nil
}

func (s *HTTPServer) MustRegisterMetrics() {
	if s.requestMetrics != nil {
		s.requestMetrics.MustRegister()
	}
}

func (s *HTTPServer) UnregisterMetrics() {
	if s.requestMetrics != nil {
		s.requestMetrics.Unregister()
	}
}

// RequestMetrics is nil for the metrics server.
func (s *HTTPServer) RequestMetrics() *middleware.HTTPRequestMetricsCollector {
	return s.requestMetrics
}

// GetPort returns the TCP port being listened on, or 0 before Start has bound it.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
