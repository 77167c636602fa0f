/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type errorRespData struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context"`
}

type wrappedErrorRespData struct {
	Error errorRespData `json:"error"`
}

// RequireErrorInRecorder asserts that passing httptest.ResponseRecorder contains the wrapped error
// and returns its message.
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string) string {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	return requireErrorInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireErrorInResponse asserts that passing http.Response contains the wrapped error and returns its message.
// The response body is consumed but not closed.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrDomain, wantErrCode string) string {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	return requireErrorInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

func requireErrorInResponse(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, wantErrDomain, wantErrCode string,
) string {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var errResp wrappedErrorRespData
	require.NoError(t, json.NewDecoder(body).Decode(&errResp))
	require.Equal(t, wantErrDomain, errResp.Error.Domain)
	require.Equal(t, wantErrCode, errResp.Error.Code)
	return errResp.Error.Message
}

// RequireJSONInResponse asserts that the response has JSON content type and decodes its body into dest.
func RequireJSONInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, resp.StatusCode)
	require.Equal(t, contentTypeAppJSON, resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}
