// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"flowplane/internal/auth"
	"flowplane/internal/logger"
	"flowplane/internal/store"
)

// tenantKey is the context key for the authenticated tenant.
type tenantKey struct{}

// TenantLookup resolves an API key hash to a tenant.
type TenantLookup interface {
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*store.Tenant, error)
}

// AuthMiddleware authenticates requests by API key. The key is sent as a
// Bearer token; only its hash is stored, so lookup is by hash. The resolved
// tenant is placed in the request context and every downstream operation is
// scoped by it.
func AuthMiddleware(s TenantLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			tenant, err := s.GetTenantByAPIKeyHash(r.Context(), auth.HashKey(parts[1]))
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					http.Error(w, "Invalid API key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Internal error", http.StatusInternalServerError)
				return
			}
			if tenant == nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey{}, tenant)
			ctx = logger.WithTenantID(ctx, tenant.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewContextWithTenant returns a context carrying an authenticated tenant.
func NewContextWithTenant(ctx context.Context, t *store.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

// TenantFromContext extracts the authenticated tenant from the context.
func TenantFromContext(ctx context.Context) (*store.Tenant, bool) {
	t, ok := ctx.Value(tenantKey{}).(*store.Tenant)
	return t, ok
}

// TenantIDFromContext extracts the authenticated tenant's ID from the context.
func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if t, ok := TenantFromContext(ctx); ok {
		return t.ID, true
	}
	return uuid.Nil, false
}
