/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/restapi"
)

// RecoveryDefaultStackSize defines the default size of stack part which will be logged.
const RecoveryDefaultStackSize = 8192

type recoveryHandler struct {
	next        http.Handler
	errorDomain string
	stackSize   int
}

// Recovery is a middleware that recovers from panics, logs the panic value and a stacktrace,
// and responds with 500 and an internal error of the given domain.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithStackSize(errDomain, RecoveryDefaultStackSize)
}

// RecoveryWithStackSize is a version of Recovery middleware that logs at most stackSize bytes of the stack.
// Zero disables stack logging.
func RecoveryWithStackSize(errDomain string, stackSize int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &recoveryHandler{next: next, errorDomain: errDomain, stackSize: stackSize}
	}
}

func (h *recoveryHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		logger := GetLoggerFromContext(r.Context())

		// http.Server recovers ErrAbortHandler silently, keep propagating it.
		if p == http.ErrAbortHandler {
			if logger != nil {
				logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
			}
			panic(p)
		}

		if logger != nil {
			var logFields []log.Field
			if h.stackSize != 0 {
				stack := make([]byte, h.stackSize)
				stack = stack[:runtime.Stack(stack, false)]
				logFields = append(logFields, log.String("stack", string(stack)))
			}
			logger.Error(fmt.Sprintf("Panic: %+v", p), logFields...)
		}

		restapi.RespondInternalError(rw, h.errorDomain, logger)
	}()

	h.next.ServeHTTP(rw, r)
}
