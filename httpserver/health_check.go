/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-wsrelay/httpserver/middleware"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/restapi"
)

// StatusClientClosedRequest is a special HTTP status code used by Nginx to show that the client
// closed the request before the server could send a response
const StatusClientClosedRequest = 499

const (
	healthzEndpoint = "/healthz"
	readyzEndpoint  = "/readyz"
)

// ComponentStatus is a resulting status of a single checked component.
type ComponentStatus int

// Component statuses.
const (
	ComponentStatusOK ComponentStatus = iota
	ComponentStatusFail
)

// CheckResult maps component names to their statuses.
type CheckResult = map[string]ComponentStatus

// CheckFunc checks the components of the relay.
type CheckFunc = func(ctx context.Context) (CheckResult, error)

type checkResponseData struct {
	Components map[string]bool `json:"components"`
}

// CheckHandler implements http.Handler and reports the statuses of components.
// It responds 503 if any component fails.
type CheckHandler struct {
	checkFn CheckFunc
}

// NewLivenessHandler creates a handler that always reports the process as alive.
func NewLivenessHandler() *CheckHandler {
	return NewCheckHandler(nil)
}

// NewCheckHandler creates a new http.Handler calling fn on every request.
func NewCheckHandler(fn CheckFunc) *CheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (CheckResult, error) {
			return CheckResult{}, ctx.Err()
		}
	}
	return &CheckHandler{fn}
}

// ServeHTTP serves check HTTP request.
func (h *CheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	result, err := h.checkFn(r.Context())
	if err != nil {
		if logger != nil {
			logger.Error("error while checking components", log.Error(err))
		}
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	failed := false
	respData := checkResponseData{Components: make(map[string]bool, len(result))}
	for name, status := range result {
		respData.Components[name] = status == ComponentStatusOK
		if status != ComponentStatusOK {
			failed = true
		}
	}

	respStatus := http.StatusOK
	if failed {
		respStatus = http.StatusServiceUnavailable
	}
	restapi.RespondCodeAndJSON(rw, respStatus, respData, logger)
}
