/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

const headerRequestID = "X-Request-ID"

type requestIDHandler struct {
	next       http.Handler
	generateID func() string
}

// RequestID is a middleware that reads X-Request-ID request's HTTP header and generates a new id (xid) if it's empty.
// The id is put into request's context and returned in X-Request-ID response header.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithGenerator(func() string { return xid.New().String() })
}

// RequestIDWithGenerator is a version of RequestID middleware with a custom id generator.
func RequestIDWithGenerator(generateID func() string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &requestIDHandler{next: next, generateID: generateID}
	}
}

func (h *requestIDHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = h.generateID()
	}
	rw.Header().Set(headerRequestID, requestID)
	h.next.ServeHTTP(rw, r.WithContext(NewContextWithRequestID(r.Context(), requestID)))
}
