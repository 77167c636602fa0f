/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package restapi renders the relay's non-websocket responses (refusals, health) as JSON.
package restapi

import "fmt"

// Error is the body of every refusal: {"error": {"domain": ..., "code": ..., "message": ...}}.
type Error struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Codes and messages of errors that are not specific to a domain.
const (
	ErrCodeInternal         = "internalError"
	ErrCodeNotFound         = "notFound"
	ErrCodeMethodNotAllowed = "methodNotAllowed"

	ErrMessageInternal         = "Internal error."
	ErrMessageNotFound         = "Not found."
	ErrMessageMethodNotAllowed = "Method not allowed."
)

// NewError creates a new Error.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewInternalError creates an error that hides details of a failure from the client.
func NewInternalError(domain string) *Error {
	return NewError(domain, ErrCodeInternal, ErrMessageInternal)
}

// AddContext adds a value to the error context and returns the error for chaining.
func (e *Error) AddContext(field string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[field] = value
	return e
}

// Error implements the error interface, so *Error may be returned and wrapped as a regular error.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Domain, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Domain, e.Code, e.Message)
}
