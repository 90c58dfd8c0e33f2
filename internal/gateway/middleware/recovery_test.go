package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoveryCatchesPanicAndReturns500(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	w := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		Recovery(next).ServeHTTP(w, req)
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecoveryPassesThroughWithoutPanic(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	w := httptest.NewRecorder()

	Recovery(next).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
