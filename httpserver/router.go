/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-wsrelay/httpserver/middleware"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/restapi"
)

// probeEndpoints are not involved in request metrics collecting.
var probeEndpoints = []string{healthzEndpoint, readyzEndpoint}

func newRouter(cfg *Config, logger log.FieldLogger, opts Opts, requestMetrics *middleware.HTTPRequestMetricsCollector) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(middleware.LoggingWithOpts(logger, middleware.LoggingOpts{ExcludedEndpoints: cfg.Log.ExcludedEndpoints}))
	router.Use(middleware.Recovery(opts.ErrorDomain))

	metricsMiddleware := middleware.HTTPRequestMetrics(requestMetrics)
	router.Use(func(next http.Handler) http.Handler {
		withMetrics := metricsMiddleware(next)
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			for _, endpoint := range probeEndpoints {
				if r.URL.Path == endpoint {
					next.ServeHTTP(rw, r)
					return
				}
			}
			withMetrics.ServeHTTP(rw, r)
		})
	})

	router.Method(http.MethodGet, healthzEndpoint, NewLivenessHandler())
	router.Method(http.MethodGet, readyzEndpoint, NewCheckHandler(opts.ReadinessCheck))

	if opts.Routes != nil {
		opts.Routes(router)
	}

	setErrorHandlers(router, opts.ErrorDomain, logger)
	return router
}

func setErrorHandlers(router chi.Router, errDomain string, logger log.FieldLogger) {
	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(errDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, loggerFromRequest(r, logger))
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(errDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, loggerFromRequest(r, logger))
	})
}

func loggerFromRequest(r *http.Request, fallback log.FieldLogger) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return fallback
}
