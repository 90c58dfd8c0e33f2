package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// InjectHeaders stamps the authenticated identity onto the outbound
// request as X-* headers, the contract every downstream service trusts
// instead of re-validating the token itself. X-Request-Id is always set,
// even on public paths that skip Auth, so every request is traceable.
func InjectHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenantID, err := GetTenantID(r.Context()); err == nil {
			r.Header.Set("X-Tenant-Id", tenantID.String())
		}
		if userID, err := GetUserID(r.Context()); err == nil {
			r.Header.Set("X-User-Id", userID.String())
		}
		if email := GetEmail(r.Context()); email != "" {
			r.Header.Set("X-User-Email", email)
		}
		if roles := GetRoles(r.Context()); len(roles) > 0 {
			r.Header.Set("X-User-Roles", strings.Join(roles, ","))
		}
		if perms := GetPermissions(r.Context()); len(perms) > 0 {
			r.Header.Set("X-User-Permissions", strings.Join(perms, ","))
		}

		reqID := chimw.GetReqID(r.Context())
		if reqID == "" {
			reqID = uuid.New().String()
		}
		r.Header.Set("X-Request-Id", reqID)

		next.ServeHTTP(w, r)
	})
}
