package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/meridianclinic/platform/internal/identity"
	"github.com/meridianclinic/platform/internal/platform/apierror"
)

// PublicPaths bypasses authentication entirely, per spec.md's "public
// path" concept: a URL not requiring authentication at the gateway.
type PublicPaths map[string]bool

func (p PublicPaths) Allows(path string) bool {
	if p[path] {
		return true
	}
	for prefix := range p {
		if strings.HasSuffix(prefix, "*") && strings.HasPrefix(path, strings.TrimSuffix(prefix, "*")) {
			return true
		}
	}
	return false
}

// Auth validates the bearer token and injects user/tenant/roles/
// permissions into the request context for downstream header injection,
// skipping validation entirely for public paths.
func Auth(provider identity.TokenProvider, public PublicPaths) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Allows(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_token", "authorization header required"))
				return
			}

			claims, err := provider.ValidateToken(parts[1])
			if err != nil {
				apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "invalid_token", "invalid or expired token"))
				return
			}
			if claims.Scope != "access" {
				apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "wrong_token_scope", "token is not an access token"))
				return
			}
			// A blank tenantId is rejected outright: every downstream
			// service assumes tenant scoping on every request it serves.
			if claims.TenantID.String() == "00000000-0000-0000-0000-000000000000" {
				apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_tenant", "token is missing a tenant id"))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, TenantIDKey, claims.TenantID)
			ctx = context.WithValue(ctx, RolesKey, claims.Roles)
			ctx = context.WithValue(ctx, PermissionsKey, claims.Permissions)
			ctx = context.WithValue(ctx, EmailKey, claims.Email)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
