package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/candidex/search/internal/repository"
)

// APIKeyHeader carries the tenant API key on public endpoints.
const APIKeyHeader = "X-API-Key"

type contextKey string

const (
	tenantContextKey contextKey = "tenant"
	claimsContextKey contextKey = "claims"
)

// TenantFromContext returns the authenticated tenant, if any.
func TenantFromContext(ctx context.Context) (*repository.Tenant, bool) {
	tenant, ok := ctx.Value(tenantContextKey).(*repository.Tenant)
	return tenant, ok
}

// ClaimsFromContext returns the validated service claims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

// APIKeyMiddleware resolves the X-API-Key header to a tenant and stores it
// in the request context. Requests without a resolvable key get 401; the
// response never says whether the key exists.
func APIKeyMiddleware(tenants repository.TenantRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			tenant, err := tenants.GetByAPIKey(r.Context(), key)
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) {
					logger.Error("tenant lookup failed", "error", err)
				}
				writeAuthError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// JWTMiddleware validates a Bearer service token on internal endpoints.
func JWTMiddleware(manager *JWTManager, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := manager.ValidateToken(token)
			if err != nil {
				logger.Debug("token rejected", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
