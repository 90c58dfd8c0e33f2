package httpkit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Name string `json:"name"`
}

func TestDecodeJSONSuccess(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"a"}`))
	req.Header.Set("Content-Type", "application/json")

	var dst samplePayload
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "a", dst.Name)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"a","extra":1}`))
	req.Header.Set("Content-Type", "application/json")

	var dst samplePayload
	assert.Error(t, DecodeJSON(req, &dst))
}

func TestDecodeJSONRejectsWrongContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"a"}`))
	req.Header.Set("Content-Type", "text/plain")

	var dst samplePayload
	assert.Error(t, DecodeJSON(req, &dst))
}

func TestClientIPReturnsUnknownWhenBlank(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientIP(req))
}

func TestClientIPReturnsRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	assert.Equal(t, "10.0.0.5:1234", ClientIP(req))
}
