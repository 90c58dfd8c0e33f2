package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianclinic/platform/internal/gateway/discovery"
)

func TestServiceForMatchesKnownPrefixes(t *testing.T) {
	cases := []struct {
		path    string
		service string
	}{
		{"/api/auth/login", "auth-service"},
		{"/api/patients/123", "patient-service"},
		{"/api/doctors/123", "doctor-service"},
		{"/api/appointments/123", "appointment-service"},
		{"/api/medical-records/123", "medical-records-service"},
		{"/api/facilities/123", "facility-service"},
		{"/api/notifications/123", "notification-service"},
		{"/api/audit", "audit-service"},
	}
	for _, c := range cases {
		service, ok := serviceFor(c.path)
		require.True(t, ok, c.path)
		assert.Equal(t, c.service, service, c.path)
	}
}

func TestServiceForUnknownPath(t *testing.T) {
	_, ok := serviceFor("/unmapped")
	assert.False(t, ok)
}

func TestDefaultPublicPathsAllowsAuthAndHealth(t *testing.T) {
	paths := DefaultPublicPaths()
	assert.True(t, paths.Allows("/api/auth/login"))
	assert.True(t, paths.Allows("/api/auth/register"))
	assert.True(t, paths.Allows("/q/health/live"))
	assert.True(t, paths.Allows("/q/health/ready"))
	assert.True(t, paths.Allows("/q/metrics"))
	assert.True(t, paths.Allows("/"))
	assert.False(t, paths.Allows("/api/appointments"))
}

func TestHealthLiveAlwaysUp(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/q/health/live", nil)
	w := httptest.NewRecorder()
	healthLive(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthReadyDownWithNoAuthInstances(t *testing.T) {
	registry := discovery.NewRegistry()

	req := httptest.NewRequest(http.MethodGet, "/q/health/ready", nil)
	w := httptest.NewRecorder()
	healthReady(registry)(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthReadyUpWhenAuthHealthy(t *testing.T) {
	registry := discovery.NewRegistry()
	registry.Register("auth-service", "http://auth:8081")

	req := httptest.NewRequest(http.MethodGet, "/q/health/ready", nil)
	w := httptest.NewRecorder()
	healthReady(registry)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
