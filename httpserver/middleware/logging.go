/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/acronis/go-wsrelay/log"
)

// LoggingOpts represents an options for Logging middleware.
type LoggingOpts struct {
	// ExcludedEndpoints are paths for which successful requests are not logged (probes, metrics).
	ExcludedEndpoints []string
}

type loggingHandler struct {
	next   http.Handler
	logger log.FieldLogger
	opts   LoggingOpts
}

// Logging is a middleware that logs info about HTTP request and response.
// Also, it puts logger (with request id in fields) into request's context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging middleware.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	startTime := GetRequestStartTimeFromContext(ctx)
	if startTime.IsZero() {
		startTime = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, startTime)
	}

	loggerForNext := h.logger.With(log.String("request_id", GetRequestIDFromContext(ctx)))
	logger := loggerForNext.With(
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.String("user_agent", r.UserAgent()),
	)
	if remoteIP, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		logger = logger.With(log.String("remote_addr_ip", remoteIP))
	}

	wrw := chimw.NewWrapResponseWriter(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r.WithContext(NewContextWithLogger(ctx, loggerForNext)))

	status := responseStatus(wrw.Status(), r)
	if status < http.StatusBadRequest && isExcludedEndpoint(r.URL.Path, h.opts.ExcludedEndpoints) {
		return
	}
	duration := time.Since(startTime)
	logger.Info(
		fmt.Sprintf("response completed in %.3fs", duration.Seconds()),
		log.Int64("duration_ms", duration.Milliseconds()),
		log.Int("status", status),
		log.Int("bytes_sent", wrw.BytesWritten()),
	)
}

// responseStatus returns the status written by the handler.
// A hijacked websocket connection never calls WriteHeader on the wrapper,
// and a handler that wrote nothing gets 200 from net/http.
func responseStatus(written int, r *http.Request) int {
	if written != 0 {
		return written
	}
	if websocket.IsWebSocketUpgrade(r) {
		return http.StatusSwitchingProtocols
	}
	return http.StatusOK
}

func isExcludedEndpoint(urlPath string, endpoints []string) bool {
	for _, endpoint := range endpoints {
		if urlPath == endpoint {
			return true
		}
	}
	return false
}
