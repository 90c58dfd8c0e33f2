package appointment

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func newTestHandler() *Handler {
	return NewHandler(nil, nil)
}

func TestTenantIDFromMissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/appointments/1", nil)
	_, err := tenantIDFrom(req)
	assert.Error(t, err)
}

func TestTenantIDFromInvalidHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/appointments/1", nil)
	req.Header.Set("X-Tenant-Id", "not-a-uuid")
	_, err := tenantIDFrom(req)
	assert.Error(t, err)
}

func TestCreateRejectsMissingTenant(t *testing.T) {
	h := newTestHandler()
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetRejectsInvalidID(t *testing.T) {
	h := newTestHandler()
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/appointments/not-a-uuid", nil)
	req.Header.Set("X-Tenant-Id", "11111111-1111-1111-1111-111111111111")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRequiresAFilter(t *testing.T) {
	h := newTestHandler()
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("X-Tenant-Id", "11111111-1111-1111-1111-111111111111")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRejectsInvalidPatientID(t *testing.T) {
	h := newTestHandler()
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/appointments?patientId=not-a-uuid", nil)
	req.Header.Set("X-Tenant-Id", "11111111-1111-1111-1111-111111111111")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatusRejectsInvalidBody(t *testing.T) {
	h := newTestHandler()
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodPatch, "/api/appointments/11111111-1111-1111-1111-111111111111/status", strings.NewReader(`{"status":1,"extra":true}`))
	req.Header.Set("X-Tenant-Id", "11111111-1111-1111-1111-111111111111")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteRejectsMissingTenant(t *testing.T) {
	h := newTestHandler()
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodDelete, "/api/appointments/11111111-1111-1111-1111-111111111111", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthLiveReportsUp(t *testing.T) {
	h := newTestHandler()
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/q/health/live", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
