/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/log/logtest"
)

func TestRespondError(t *testing.T) {
	MustInitAndRegisterMetrics("wsrelay_test")
	defer UnregisterMetrics()

	t.Run("client error is logged as warning", func(t *testing.T) {
		rec := httptest.NewRecorder()
		logger := logtest.NewRecorder()
		apiErr := NewError("WSRelay", "tooManyConnections", "Too many connections.").AddContext("scope", "per_address")
		RespondError(rec, http.StatusTooManyRequests, apiErr, logger)

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, ContentTypeAppJSON, rec.Header().Get("Content-Type"))
		require.JSONEq(t, `{"error":{"domain":"WSRelay","code":"tooManyConnections",`+
			`"message":"Too many connections.","context":{"scope":"per_address"}}}`, rec.Body.String())

		entry, found := logger.FindEntry("error in response")
		require.True(t, found)
		require.Equal(t, log.LevelWarn, entry.Level)
		require.Equal(t, "tooManyConnections", entry.StringField("error_code"))
		require.Equal(t, 1.0, promtestutil.ToFloat64(metricsResponseErrors.WithLabelValues("WSRelay", "tooManyConnections")))
	})

	t.Run("internal error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		logger := logtest.NewRecorder()
		RespondInternalError(rec, "WSRelay", logger)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		entry, found := logger.FindEntry("error in response")
		require.True(t, found)
		require.Equal(t, log.LevelError, entry.Level)
	})

	t.Run("nil data", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RespondCodeAndJSON(rec, http.StatusNoContent, nil, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Empty(t, rec.Body.String())
	})
}

func TestSetRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	SetRetryAfter(rec, 1500*time.Millisecond)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	SetRetryAfter(rec, 0)
	require.Empty(t, rec.Header().Get("Retry-After"))
}

func TestError_Error(t *testing.T) {
	require.Equal(t, "WSRelay: notFound: Not found.", NewError("WSRelay", ErrCodeNotFound, ErrMessageNotFound).Error())
	require.Equal(t, "WSRelay: internalError", (&Error{Domain: "WSRelay", Code: ErrCodeInternal}).Error())
}
