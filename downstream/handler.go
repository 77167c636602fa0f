/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package downstream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-wsrelay/httpserver/middleware"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/restapi"
)

// ErrorDomain is the domain of errors the relay responds with.
const ErrorDomain = "WSRelay"

// Error codes of refused connection attempts.
const (
	ErrCodeAPIKeyRequired     = "apiKeyRequired"
	ErrCodeInvalidAPIKey      = "invalidApiKey"
	ErrCodeNotWebsocket       = "notWebsocket"
	ErrCodeOriginNotAllowed   = "originNotAllowed"
	ErrCodeTooManyAttempts    = "tooManyAttempts"
	ErrCodeTooManyConnections = "tooManyConnections"
	ErrCodeShuttingDown       = "shuttingDown"
	ErrCodeLimiterUnavailable = "limiterUnavailable"
)

const apiKeyURLParam = "apiKey"

// AttemptLimiter decides whether the address may try to connect now.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// HandlerOpts contains optional parameters for constructing Handler.
type HandlerOpts struct {
	APIKeys          []string
	AllowedOrigins   []string
	ClientAddrHeader string
	HandshakeTimeout time.Duration
	// AttemptLimiter is not used when nil.
	AttemptLimiter AttemptLimiter
	Metrics        MetricsCollector
}

// Handler serves websocket upgrade requests and passes them to the registry.
type Handler struct {
	registry         *Registry
	upgrader         *websocket.Upgrader
	apiKeys          map[string]struct{}
	allowedOrigins   []func(s string) bool
	clientAddrHeader string
	attemptLimiter   AttemptLimiter
	logger           log.FieldLogger
	metrics          MetricsCollector
}

// NewHandler creates a new Handler.
func NewHandler(registry *Registry, logger log.FieldLogger, opts HandlerOpts) *Handler {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
	apiKeys := make(map[string]struct{}, len(opts.APIKeys))
	for _, key := range opts.APIKeys {
		apiKeys[key] = struct{}{}
	}
	origins := make([]func(s string) bool, 0, len(opts.AllowedOrigins))
	for _, pattern := range opts.AllowedOrigins {
		origins = append(origins, glob.Compile(pattern))
	}
	return &Handler{
		registry: registry,
		upgrader: &websocket.Upgrader{
			HandshakeTimeout: opts.HandshakeTimeout,
			// Origin is verified before admission, see checkOrigin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		apiKeys:          apiKeys,
		allowedOrigins:   origins,
		clientAddrHeader: opts.ClientAddrHeader,
		attemptLimiter:   opts.AttemptLimiter,
		logger:           logger,
		metrics:          opts.Metrics,
	}
}

// Register mounts the websocket endpoints on the router.
func (h *Handler) Register(router chi.Router) {
	router.Get("/ws", h.ServeHTTP)
	router.Get("/ws/{"+apiKeyURLParam+"}", h.ServeHTTP)
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = h.logger
	}

	apiKey := chi.URLParam(r, apiKeyURLParam)
	if len(h.apiKeys) != 0 {
		if apiKey == "" {
			h.refuse(rw, http.StatusUnauthorized, RejectReasonUnauthorized,
				restapi.NewError(ErrorDomain, ErrCodeAPIKeyRequired, "API key required"), logger)
			return
		}
		if _, ok := h.apiKeys[apiKey]; !ok {
			h.refuse(rw, http.StatusUnauthorized, RejectReasonUnauthorized,
				restapi.NewError(ErrorDomain, ErrCodeInvalidAPIKey, "Invalid API key"), logger)
			return
		}
	}

	if !websocket.IsWebSocketUpgrade(r) {
		h.refuse(rw, http.StatusBadRequest, RejectReasonNotWebsocket,
			restapi.NewError(ErrorDomain, ErrCodeNotWebsocket, "Websocket upgrade expected"), logger)
		return
	}

	if !h.checkOrigin(r) {
		h.refuse(rw, http.StatusForbidden, RejectReasonOrigin,
			restapi.NewError(ErrorDomain, ErrCodeOriginNotAllowed, "Origin not allowed"), logger)
		return
	}

	addr := h.clientAddr(r)
	logger = logger.With(log.String("client_addr", addr))

	if h.attemptLimiter != nil {
		allow, retryAfter, err := h.attemptLimiter.Allow(r.Context(), addr)
		switch {
		case err != nil:
			logger.Error("failed to check connection attempts rate, letting the attempt through", log.Error(err))
		case !allow:
			restapi.SetRetryAfter(rw, retryAfter)
			h.refuse(rw, http.StatusTooManyRequests, RejectReasonThrottled,
				restapi.NewError(ErrorDomain, ErrCodeTooManyAttempts, "Too many connection attempts"), logger)
			return
		}
	}

	client, err := h.registry.Admit(r.Context(), &httpCandidate{upgrader: h.upgrader, rw: rw, r: r}, addr)
	if err != nil {
		h.respondAdmissionError(rw, err, logger)
		return
	}

	h.metrics.IncConnectionsByAPIKey(apiKeyLabel(apiKey))
	logger.Info("downstream client connected", log.String("client_id", client.ID()))
}

func (h *Handler) respondAdmissionError(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	if errors.Is(err, ErrShuttingDown) {
		restapi.RespondError(rw, http.StatusServiceUnavailable,
			restapi.NewError(ErrorDomain, ErrCodeShuttingDown, "Relay is shutting down"), logger)
		return
	}
	var admErr *AdmissionError
	if !errors.As(err, &admErr) {
		logger.Error("failed to admit downstream client", log.Error(err))
		restapi.RespondInternalError(rw, ErrorDomain, logger)
		return
	}
	switch admErr.Kind {
	case KindLimitExceeded:
		restErr := restapi.NewError(ErrorDomain, ErrCodeTooManyConnections, admErr.Error()).
			AddContext("scope", admErr.Scope.Kind.String())
		restapi.RespondError(rw, http.StatusTooManyRequests, restErr, logger)
	case KindUnavailable:
		logger.Error("connection limiter failed to decide", log.Error(admErr.Err))
		restapi.RespondError(rw, http.StatusServiceUnavailable,
			restapi.NewError(ErrorDomain, ErrCodeLimiterUnavailable, "Connection limiter is unavailable"), logger)
	case KindUpgradeFailed:
		// The upgrader has already responded.
		logger.Warn("websocket upgrade failed", log.Error(admErr.Err))
	}
}

func (h *Handler) refuse(rw http.ResponseWriter, status int, reason string, err *restapi.Error, logger log.FieldLogger) {
	h.metrics.IncRejected(reason)
	restapi.RespondError(rw, status, err, logger)
}

// checkOrigin allows requests without Origin, they come from non-browser clients.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, match := range h.allowedOrigins {
		if match(origin) {
			return true
		}
	}
	return false
}

// clientAddr returns the last entry of the client address header if it is a valid IP,
// and the peer IP otherwise. Only the first occurrence of a repeated header is considered.
func (h *Handler) clientAddr(r *http.Request) string {
	if h.clientAddrHeader != "" {
		if value := r.Header.Get(h.clientAddrHeader); value != "" {
			entries := strings.Split(value, ",")
			if ip := net.ParseIP(strings.TrimSpace(entries[len(entries)-1])); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// apiKeyLabel keeps the metric label short and does not expose full keys.
func apiKeyLabel(apiKey string) string {
	const visibleChars = 8
	switch {
	case apiKey == "":
		return "none"
	case len(apiKey) > visibleChars:
		return apiKey[:visibleChars] + "..."
	default:
		return apiKey
	}
}
