package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestInjectHeadersStampsAuthenticatedIdentity(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()

	ctx := context.Background()
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	ctx = context.WithValue(ctx, RolesKey, []string{"DOCTOR", "ADMIN"})
	ctx = context.WithValue(ctx, PermissionsKey, []string{"appointment:read"})
	ctx = context.WithValue(ctx, EmailKey, "dr@example.com")

	var seen *http.Request
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
	})

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil).WithContext(ctx)
	InjectHeaders(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, userID.String(), seen.Header.Get("X-User-Id"))
	assert.Equal(t, tenantID.String(), seen.Header.Get("X-Tenant-Id"))
	assert.Equal(t, "dr@example.com", seen.Header.Get("X-User-Email"))
	assert.Equal(t, "DOCTOR,ADMIN", seen.Header.Get("X-User-Roles"))
	assert.Equal(t, "appointment:read", seen.Header.Get("X-User-Permissions"))
	assert.NotEmpty(t, seen.Header.Get("X-Request-Id"))
}

func TestInjectHeadersOnPublicPathStillSetsRequestID(t *testing.T) {
	var seen *http.Request
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	InjectHeaders(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Empty(t, seen.Header.Get("X-User-Id"))
	assert.Empty(t, seen.Header.Get("X-Tenant-Id"))
	assert.NotEmpty(t, seen.Header.Get("X-Request-Id"))
}
