/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wsrelay/httpserver/middleware"
	"github.com/acronis/go-wsrelay/log"
	"github.com/acronis/go-wsrelay/restapi"
)

func TestCheckHandler_ServeHTTP(t *testing.T) {
	makeRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(middleware.NewContextWithLogger(req.Context(), log.NewDisabledLogger()))
	}
	decode := func(t *testing.T, resp *httptest.ResponseRecorder) checkResponseData {
		t.Helper()
		require.Equal(t, restapi.ContentTypeAppJSON, resp.Header().Get("Content-Type"))
		var data checkResponseData
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
		return data
	}

	t.Run("liveness is always ok", func(t *testing.T) {
		resp := httptest.NewRecorder()
		NewLivenessHandler().ServeHTTP(resp, makeRequest())
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, checkResponseData{Components: map[string]bool{}}, decode(t, resp))
	})

	t.Run("check returns error", func(t *testing.T) {
		h := NewCheckHandler(func(context.Context) (CheckResult, error) {
			return nil, fmt.Errorf("internal error")
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest())
		require.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("failed component", func(t *testing.T) {
		h := NewCheckHandler(func(context.Context) (CheckResult, error) {
			return CheckResult{"upstream": ComponentStatusFail, "rate_limit_store": ComponentStatusOK}, nil
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest())
		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
		want := checkResponseData{Components: map[string]bool{"upstream": false, "rate_limit_store": true}}
		require.Equal(t, want, decode(t, resp))
	})

	t.Run("all components ok", func(t *testing.T) {
		h := NewCheckHandler(func(context.Context) (CheckResult, error) {
			return CheckResult{"upstream": ComponentStatusOK, "rate_limit_store": ComponentStatusOK}, nil
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest())
		require.Equal(t, http.StatusOK, resp.Code)
		want := checkResponseData{Components: map[string]bool{"upstream": true, "rate_limit_store": true}}
		require.Equal(t, want, decode(t, resp))
	})

	t.Run("client closed request", func(t *testing.T) {
		h := NewCheckHandler(func(ctx context.Context) (CheckResult, error) {
			return nil, ctx.Err()
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest().WithContext(ctx))
		require.Equal(t, StatusClientClosedRequest, resp.Code)
	})
}
