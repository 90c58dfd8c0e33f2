package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianclinic/platform/internal/identity"
)

// fakeTokenProvider implements identity.TokenProvider without any real
// signing, so Auth can be tested without an RSA keypair.
type fakeTokenProvider struct {
	claims *identity.Claims
	err    error
}

func (f *fakeTokenProvider) GenerateAccessToken(identity.User, []string, []string) (string, error) {
	return "", nil
}
func (f *fakeTokenProvider) GenerateRefreshToken(identity.User) (string, error) { return "", nil }
func (f *fakeTokenProvider) GeneratePreAuthToken(uuid.UUID) (string, error)     { return "", nil }
func (f *fakeTokenProvider) ValidateToken(string) (*identity.Claims, error)     { return f.claims, f.err }
func (f *fakeTokenProvider) GetJWKS() (*identity.JWKS, error)                   { return &identity.JWKS{}, nil }

func TestAuthBypassesPublicPaths(t *testing.T) {
	public := PublicPaths{"/api/auth/login": true}
	provider := &fakeTokenProvider{err: assert.AnError}

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	w := httptest.NewRecorder()
	Auth(provider, public)(next).ServeHTTP(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejectsMissingAuthorizationHeader(t *testing.T) {
	provider := &fakeTokenProvider{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	w := httptest.NewRecorder()
	Auth(provider, PublicPaths{})(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	provider := &fakeTokenProvider{err: assert.AnError}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	Auth(provider, PublicPaths{})(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsWrongTokenScope(t *testing.T) {
	claims := &identity.Claims{Scope: "refresh", TenantID: uuid.New()}
	provider := &fakeTokenProvider{claims: claims}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Authorization", "Bearer ok")
	w := httptest.NewRecorder()
	Auth(provider, PublicPaths{})(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsMissingTenant(t *testing.T) {
	claims := &identity.Claims{Scope: "access", UserID: uuid.New()}
	provider := &fakeTokenProvider{claims: claims}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Authorization", "Bearer ok")
	w := httptest.NewRecorder()
	Auth(provider, PublicPaths{})(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthInjectsContextOnValidToken(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()
	claims := &identity.Claims{
		Scope:       "access",
		UserID:      userID,
		TenantID:    tenantID,
		Email:       "doc@example.com",
		Roles:       []string{"DOCTOR"},
		Permissions: []string{"appointment:read"},
	}
	provider := &fakeTokenProvider{claims: claims}

	var gotUserID uuid.UUID
	var gotTenantID uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotUserID, err = GetUserID(r.Context())
		require.NoError(t, err)
		gotTenantID, err = GetTenantID(r.Context())
		require.NoError(t, err)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Authorization", "Bearer ok")
	w := httptest.NewRecorder()
	Auth(provider, PublicPaths{})(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, gotUserID)
	assert.Equal(t, tenantID, gotTenantID)
}

func TestPublicPathsWildcard(t *testing.T) {
	p := PublicPaths{"/q/health/*": true}
	assert.True(t, p.Allows("/q/health/live"))
	assert.True(t, p.Allows("/q/health/ready"))
	assert.False(t, p.Allows("/q/metrics"))
}
