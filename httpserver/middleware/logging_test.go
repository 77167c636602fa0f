/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/log/logtest"
	"github.com/acronis/go-wsrelay/testutil"
)

func TestLoggingHandler_ServeHTTP(t *testing.T) {
	t.Run("request is logged, logger is put into context", func(t *testing.T) {
		logger := logtest.NewRecorder()
		next := &mockNextHandler{status: http.StatusTooManyRequests}
		req := httptest.NewRequest(http.MethodGet, "/ws/key?x=1", nil)
		req.Header.Set("User-Agent", "test-agent")
		resp := httptest.NewRecorder()

		RequestIDWithGenerator(func() string { return "req-1" })(Logging(logger)(next)).ServeHTTP(resp, req)

		require.Equal(t, 1, next.called)
		ctxLogger := GetLoggerFromContext(next.request.Context())
		require.NotNil(t, ctxLogger)
		ctxLogger.Info("from handler")
		entry, found := logger.FindEntry("from handler")
		require.True(t, found)
		require.Equal(t, "req-1", entry.StringField("request_id"))

		entry, found = logger.FindEntryByFilter(func(e logtest.RecordedEntry) bool {
			_, ok := e.FindField("duration_ms")
			return ok
		})
		require.True(t, found)
		require.Equal(t, log.LevelInfo, entry.Level)
		require.Equal(t, "GET", entry.StringField("method"))
		require.Equal(t, "/ws/key?x=1", entry.StringField("uri"))
		require.Equal(t, "test-agent", entry.StringField("user_agent"))
		statusField, _ := entry.FindField("status")
		require.EqualValues(t, http.StatusTooManyRequests, statusField.Int)
	})

	t.Run("excluded endpoint is not logged on success", func(t *testing.T) {
		logger := logtest.NewRecorder()
		handler := LoggingWithOpts(logger, LoggingOpts{ExcludedEndpoints: []string{"/healthz"}})(&mockNextHandler{})
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Empty(t, logger.Entries())

		handler = LoggingWithOpts(logger, LoggingOpts{ExcludedEndpoints: []string{"/readyz"}})(
			&mockNextHandler{status: http.StatusServiceUnavailable})
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Len(t, logger.Entries(), 1)
	})

	t.Run("websocket upgrade without written header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		require.Equal(t, http.StatusOK, responseStatus(0, httptest.NewRequest(http.MethodGet, "/", nil)))
		require.Equal(t, http.StatusSwitchingProtocols, responseStatus(0, req))
		require.Equal(t, http.StatusBadRequest, responseStatus(http.StatusBadRequest, req))
	})
}

func TestHTTPRequestMetrics(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector("")

	router := chi.NewRouter()
	router.Use(HTTPRequestMetrics(collector))
	router.Get("/ws/{apiKey}", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusUnauthorized)
	})

	for i := 0; i < 3; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws/key-"+string(rune('a'+i)), nil))
	}

	hist := collector.Durations.WithLabelValues(http.MethodGet, "/ws/{apiKey}", "401").(prometheus.Histogram)
	testutil.RequireSamplesCountInHistogram(t, hist, 3)
	require.Equal(t, 0.0, testutil.GaugeValue(t, collector.InFlight.WithLabelValues(http.MethodGet)))
}
