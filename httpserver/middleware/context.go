/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package middleware contains the HTTP middlewares shared by the relay's HTTP servers:
// request ids, request-scoped logging, panic recovery and request metrics.
package middleware

import (
	"context"
	"time"

	"github.com/acronis/go-wsrelay/log"
)

type ctxKey[T any] struct{ name string }

var (
	requestIDKey = ctxKey[string]{"request_id"}
	loggerKey    = ctxKey[log.FieldLogger]{"logger"}
	startTimeKey = ctxKey[time.Time]{"start_time"}
)

func (k ctxKey[T]) with(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, k, v)
}

// from returns the zero T if ctx has no value for k.
func (k ctxKey[T]) from(ctx context.Context) T {
	v, _ := ctx.Value(k).(T)
	return v
}

func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return requestIDKey.with(ctx, requestID)
}

func GetRequestIDFromContext(ctx context.Context) string {
	return requestIDKey.from(ctx)
}

func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return loggerKey.with(ctx, logger)
}

// GetLoggerFromContext returns nil unless the Logging middleware has run.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return loggerKey.from(ctx)
}

func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return startTimeKey.with(ctx, startTime)
}

func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return startTimeKey.from(ctx)
}
