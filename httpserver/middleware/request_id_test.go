/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockNextHandler struct {
	called  int
	request *http.Request
	status  int
}

func (h *mockNextHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.called++
	h.request = r
	if h.status != 0 {
		rw.WriteHeader(h.status)
	}
}

func TestRequestIDHandler_ServeHTTP(t *testing.T) {
	const generatedID = "generated-request-id"

	t.Run("use request id from header", func(t *testing.T) {
		next := &mockNextHandler{}
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set(headerRequestID, "header-request-id")
		resp := httptest.NewRecorder()
		RequestIDWithGenerator(func() string { return generatedID })(next).ServeHTTP(resp, req)

		require.Equal(t, 1, next.called)
		require.Equal(t, "header-request-id", GetRequestIDFromContext(next.request.Context()))
		require.Equal(t, "header-request-id", resp.Header().Get(headerRequestID))
	})

	t.Run("generate request id", func(t *testing.T) {
		next := &mockNextHandler{}
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		resp := httptest.NewRecorder()
		RequestIDWithGenerator(func() string { return generatedID })(next).ServeHTTP(resp, req)

		require.Equal(t, generatedID, GetRequestIDFromContext(next.request.Context()))
		require.Equal(t, generatedID, resp.Header().Get(headerRequestID))
	})

	t.Run("xid by default", func(t *testing.T) {
		next := &mockNextHandler{}
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		resp := httptest.NewRecorder()
		RequestID()(next).ServeHTTP(resp, req)

		require.Len(t, GetRequestIDFromContext(next.request.Context()), 20)
		require.Equal(t, GetRequestIDFromContext(next.request.Context()), resp.Header().Get(headerRequestID))
	})
}
