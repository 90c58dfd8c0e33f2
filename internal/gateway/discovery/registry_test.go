package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterStartsHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("auth-service", "http://a:1", "http://b:2")

	healthy := r.Healthy("auth-service")
	require.Len(t, healthy, 2)
	assert.True(t, healthy[0].Healthy())
}

func TestRegistryHealthyEmptyForUnknownService(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Healthy("does-not-exist"))
}

func TestRegistryPollOnceMarksDownInstanceUnhealthy(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	r := NewRegistry()
	r.Register("patient-service", up.URL, down.URL)

	r.pollOnce(context.Background())

	healthy := r.Healthy("patient-service")
	require.Len(t, healthy, 1)
	assert.Equal(t, up.URL, healthy[0].BaseURL)
}

func TestRegistryPollHealthStopsOnContextCancel(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	r := NewRegistry()
	r.Register("auth-service", up.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.PollHealth(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PollHealth did not stop after context cancellation")
	}
}

func TestCheckOneUnreachableInstance(t *testing.T) {
	r := NewRegistry()
	inst := &Instance{ID: "x", BaseURL: "http://127.0.0.1:0"}
	assert.False(t, r.checkOne(context.Background(), inst))
}
