// Package context carries request-scoped identifiers used by logs, spans and
// persisted audit fields.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type identityIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithIdentityID records the resolved identity for the remainder of the request.
func WithIdentityID(ctx context.Context, identityID string) context.Context {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return ctx
	}
	return context.WithValue(ctx, identityIDKey{}, identityID)
}

func IdentityIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(identityIDKey{}).(string); ok {
		return v
	}
	return ""
}
