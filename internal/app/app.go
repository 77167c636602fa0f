/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package app wires the relay components into a single service unit.
package app

import (
	"context"
	"fmt"

	"github.com/acronis/go-wsrelay/connlimit"
	"github.com/acronis/go-wsrelay/downstream"
	"github.com/acronis/go-wsrelay/fanout"
	"github.com/acronis/go-wsrelay/httpserver"
	"github.com/acronis/go-wsrelay/internal/attemptlimit"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/lrucache"
	"github.com/acronis/go-wsrelay/profserver"
	"github.com/acronis/go-wsrelay/restapi"
	"github.com/acronis/go-wsrelay/service"
	"github.com/acronis/go-wsrelay/upstream"
)

// MetricsNamespace is a namespace of all relay metrics.
const MetricsNamespace = "wsrelay"

// Readiness components.
const (
	ComponentUpstream       = "upstream"
	ComponentRateLimitStore = "rate_limit_store"
)

type metricsCollector interface {
	MustRegister()
	Unregister()
}

// App is a configured relay: one upstream link, the broadcaster and the downstream registry
// behind the HTTP server.
type App struct {
	logger      log.FieldLogger
	broadcaster *fanout.Broadcaster
	limiter     *connlimit.Limiter
	registry    *downstream.Registry
	upstream    *upstream.Manager
	httpServer  *httpserver.HTTPServer
	unit        *unit
}

// New creates all relay components. Configuration errors (e.g. malformed upstream URL or Redis URL) are returned here.
func New(cfg *Config, logger log.FieldLogger) (*App, error) {
	fanoutMetrics := fanout.NewPrometheusMetrics(MetricsNamespace)
	limiterMetrics := connlimit.NewPrometheusMetrics(MetricsNamespace)
	downstreamMetrics := downstream.NewPrometheusMetrics(MetricsNamespace)
	upstreamMetrics := upstream.NewPrometheusMetrics(MetricsNamespace)
	attemptKeysMetrics := lrucache.NewPrometheusMetricsWithOpts(
		lrucache.PrometheusMetricsOpts{Namespace: MetricsNamespace, Subsystem: "attempt_limit_keys"})

	a := &App{logger: logger}

	a.broadcaster = fanout.NewBroadcaster(logger.With(log.String("component", "fanout")),
		cfg.Downstream.BroadcasterOpts(fanoutMetrics))

	var err error
	if a.limiter, err = connlimit.NewLimiterFromConfig(cfg.RateLimit,
		logger.With(log.String("component", "connlimit")), limiterMetrics); err != nil {
		return nil, fmt.Errorf("create connection limiter: %w", err)
	}

	downstreamLogger := logger.With(log.String("component", "downstream"))
	a.registry = downstream.NewRegistry(a.broadcaster, a.limiter, downstreamLogger,
		cfg.Downstream.RegistryOpts(downstreamMetrics))

	attemptLimiter, err := attemptlimit.New(cfg.AttemptLimit, attemptKeysMetrics)
	if err != nil {
		_ = a.limiter.Close()
		return nil, fmt.Errorf("create connection attempt limiter: %w", err)
	}
	handlerOpts := downstream.HandlerOpts{
		APIKeys:          cfg.Downstream.APIKeys,
		AllowedOrigins:   cfg.Downstream.AllowedOrigins,
		ClientAddrHeader: cfg.Downstream.ClientAddrHeader,
		HandshakeTimeout: cfg.Downstream.HandshakeTimeout.Duration(),
		Metrics:          downstreamMetrics,
	}
	if attemptLimiter != nil {
		handlerOpts.AttemptLimiter = attemptLimiter
	}
	handler := downstream.NewHandler(a.registry, downstreamLogger, handlerOpts)

	if a.upstream, err = upstream.NewManager(cfg.Upstream, a.broadcaster,
		logger.With(log.String("component", "upstream")), upstream.ManagerOpts{Metrics: upstreamMetrics}); err != nil {
		_ = a.limiter.Close()
		return nil, fmt.Errorf("create upstream manager: %w", err)
	}

	a.httpServer = httpserver.New(cfg.Server, logger, httpserver.Opts{
		ErrorDomain:      downstream.ErrorDomain,
		Routes:           handler.Register,
		ReadinessCheck:   a.checkReadiness,
		MetricsNamespace: MetricsNamespace,
	})

	// Units are stopped in this order: no new clients, then existing clients, then the upstream.
	units := []service.Unit{a.httpServer, a.registry, service.NewWorkerUnit(a.upstream)}
	if a.limiter.Distributed() {
		probe := service.NewPeriodicWorker(service.WorkerFunc(a.limiter.Probe),
			cfg.RateLimit.Store.Redis.ProbeInterval.Duration(), logger.With(log.String("component", "connlimit_probe")))
		units = append(units, service.NewWorkerUnit(probe))
	}
	if cfg.MetricsServer.Enabled {
		units = append(units, httpserver.NewMetricsServer(cfg.MetricsServer, logger, nil))
	}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}

	a.unit = &unit{
		CompositeUnit: service.NewOrderedCompositeUnit(units...),
		collectors: []metricsCollector{
			fanoutMetrics, limiterMetrics, downstreamMetrics, upstreamMetrics, attemptKeysMetrics,
		},
	}

	logger.Info("relay is configured",
		log.String("upstream_url", cfg.Upstream.URL),
		log.String("listen_address", cfg.Server.Address),
		log.Int64("global_limit", cfg.RateLimit.Global.Limit),
		log.Int64("per_address_limit", cfg.RateLimit.PerAddress.Limit),
		log.String("rate_limit_store", string(cfg.RateLimit.Store.Type)),
		log.Bool("attempt_limit", cfg.AttemptLimit.Enabled),
		log.Int("api_keys", len(cfg.Downstream.APIKeys)),
	)
	return a, nil
}

// Unit returns the service unit running the relay. It registers the relay metrics as well.
func (a *App) Unit() service.Unit {
	return a.unit
}

// Close releases resources that outlive the unit (the Redis client).
func (a *App) Close() error {
	return a.limiter.Close()
}

func (a *App) checkReadiness(context.Context) (httpserver.CheckResult, error) {
	result := httpserver.CheckResult{
		ComponentUpstream:       httpserver.ComponentStatusOK,
		ComponentRateLimitStore: httpserver.ComponentStatusOK,
	}
	if !a.upstream.Connected() {
		result[ComponentUpstream] = httpserver.ComponentStatusFail
	}
	if a.limiter.Degraded() {
		result[ComponentRateLimitStore] = httpserver.ComponentStatusFail
	}
	return result, nil
}

// unit adds the metrics of non-unit components to the registration done by service.Service.
type unit struct {
	*service.CompositeUnit
	collectors []metricsCollector
}

var _ service.MetricsRegisterer = (*unit)(nil)

func (u *unit) MustRegisterMetrics() {
	restapi.MustInitAndRegisterMetrics(MetricsNamespace)
	for _, c := range u.collectors {
		c.MustRegister()
	}
	u.CompositeUnit.MustRegisterMetrics()
}

func (u *unit) UnregisterMetrics() {
	u.CompositeUnit.UnregisterMetrics()
	for _, c := range u.collectors {
		c.Unregister()
	}
	restapi.UnregisterMetrics()
}
