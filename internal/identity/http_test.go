package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRegisterRequestValidateRejectsBadEmail(t *testing.T) {
	req := registerRequest{Email: "not-an-email", FullName: "Jane Doe"}
	assert.Error(t, req.validate())
}

func TestRegisterRequestValidateRejectsEmptyFullName(t *testing.T) {
	req := registerRequest{Email: "jane@example.com", FullName: ""}
	assert.Error(t, req.validate())
}

func TestRegisterRequestValidateAcceptsGoodInput(t *testing.T) {
	req := registerRequest{Email: "jane@example.com", FullName: "Jane Doe"}
	assert.NoError(t, req.validate())
}

func TestRegisterRejectsMalformedBody(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	r := chi.NewRouter()
	h.Routes(r)

	body := `{"tenantId":"` + uuid.New().String() + `","email":"bad","password":"x","fullName":"Jane"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJWKSEndpointReturnsKeys(t *testing.T) {
	h := NewHandler(nil, &fakeTokenProvider{jwks: &JWKS{Keys: []JWK{{Kid: "1"}}}}, nil)
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"1"`)
}

func TestHealthLiveReportsUp(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/q/health/live", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// fakeTokenProvider is a minimal stand-in for TokenProvider so jwks can be
// exercised without a real RSA keypair.
type fakeTokenProvider struct {
	jwks *JWKS
}

func (f *fakeTokenProvider) GenerateAccessToken(User, []string, []string) (string, error) {
	return "", nil
}
func (f *fakeTokenProvider) GenerateRefreshToken(User) (string, error)   { return "", nil }
func (f *fakeTokenProvider) GeneratePreAuthToken(uuid.UUID) (string, error) { return "", nil }
func (f *fakeTokenProvider) ValidateToken(string) (*Claims, error)       { return nil, nil }
func (f *fakeTokenProvider) GetJWKS() (*JWKS, error)                     { return f.jwks, nil }
