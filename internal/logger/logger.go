// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// requestIDKey is the context key for request/correlation IDs.
type requestIDKey struct{}

// tenantIDKey is the context key for the authenticated tenant.
type tenantIDKey struct{}

// New creates a new structured JSON logger.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// WithRequestID returns a new context with the given request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey{}); v != nil {
		return v.(string)
	}
	return ""
}

// WithTenantID returns a new context carrying the authenticated tenant.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, tenantID)
}

// TenantIDFromContext extracts the tenant ID from the context.
// Returns uuid.Nil when no tenant is attached.
func TenantIDFromContext(ctx context.Context) uuid.UUID {
	if v := ctx.Value(tenantIDKey{}); v != nil {
		return v.(uuid.UUID)
	}
	return uuid.Nil
}

// FromContext returns a logger with context fields (request ID, tenant)
// attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		base = base.With("request_id", reqID)
	}
	if tenantID := TenantIDFromContext(ctx); tenantID != uuid.Nil {
		base = base.With("tenant_id", tenantID.String())
	}
	return base
}
