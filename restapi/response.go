/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/acronis/go-wsrelay/log"
)

const ContentTypeAppJSON = "application/json"

type errorResponse struct {
	Err *Error `json:"error"`
}

// RespondJSON writes data with 200 OK.
func RespondJSON(rw http.ResponseWriter, data interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, data, logger)
}

// RespondCodeAndJSON writes data as JSON (HTML characters are not escaped) with the given status.
// A nil data writes the status only. Content-Type is not overridden if the handler has set it.
// Logging is skipped when logger is nil.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, data interface{}, logger log.FieldLogger) {
	if data == nil {
		rw.WriteHeader(statusCode)
		return
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		logError(logger, "failed to encode response body", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err := rw.Write(bytes.TrimSuffix(body.Bytes(), []byte("\n"))); err != nil {
		logError(logger, "failed to write response body", err)
	}
}

// RespondError writes {"error": err} with the given status, logs it (warn for 4xx, error otherwise)
// and counts it in the response_errors_total metric.
func RespondError(rw http.ResponseWriter, statusCode int, err *Error, logger log.FieldLogger) {
	if logger != nil {
		fields := append(make([]log.Field, 0, 4),
			log.Int("status", statusCode),
			log.String("error_code", err.Code),
			log.String("error_message", err.Message),
		)
		if len(err.Context) != 0 {
			fields = append(fields, log.Strings("error_context", contextLines(err.Context)))
		}
		if statusCode >= 400 && statusCode < 500 {
			logger.Warn("error in response", fields...)
		} else {
			logger.Error("error in response", fields...)
		}
	}
	if responseErrors := metricsResponseErrors; responseErrors != nil {
		responseErrors.WithLabelValues(err.Domain, err.Code).Inc()
	}
	RespondCodeAndJSON(rw, statusCode, errorResponse{err}, logger)
}

func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

// SetRetryAfter sets Retry-After in whole seconds, rounding up. Non-positive durations are ignored.
func SetRetryAfter(rw http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
}

func contextLines(ctx map[string]interface{}) []string {
	lines := make([]string, 0, len(ctx))
	for k, v := range ctx {
		lines = append(lines, fmt.Sprintf("%s: %v", k, v))
	}
	sort.Strings(lines)
	return lines
}

func logError(logger log.FieldLogger, msg string, err error) {
	if logger != nil {
		logger.Error(msg, log.Error(err))
	}
}
