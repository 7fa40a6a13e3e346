// Package context carries correlation identifiers through request and run
// contexts.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type runIDKey struct{}
type jobKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

// WithRunID tags ctx with the id of the reconciliation run it belongs to.
func WithRunID(ctx context.Context, id string) context.Context {
	return withValue(ctx, runIDKey{}, id)
}

func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey{})
}

func WithJob(ctx context.Context, name string) context.Context {
	return withValue(ctx, jobKey{}, name)
}

func JobFromContext(ctx context.Context) string {
	return stringValue(ctx, jobKey{})
}

func withValue(ctx context.Context, key any, value string) context.Context {
	value = strings.TrimSpace(value)
	if ctx == nil || value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
