package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseURLByEnvironment(t *testing.T) {
	cfg := ResolverConfig{
		LoopbackURL:   "http://10.0.2.2:8000",
		LANURL:        "http://192.168.0.42:8000",
		ProductionURL: "https://api.example.com",
	}

	assert.Equal(t, "http://10.0.2.2:8000", NewResolver(EnvEmulator, cfg).BaseURL())
	assert.Equal(t, "http://192.168.0.42:8000", NewResolver(EnvDevice, cfg).BaseURL())
	assert.Equal(t, "https://api.example.com", NewResolver(EnvProduction, cfg).BaseURL())

	// unknown environments fall back to production
	assert.Equal(t, "https://api.example.com", NewResolver("staging", cfg).BaseURL())
}

func TestBaseURLDefaults(t *testing.T) {
	r := NewResolver(EnvEmulator, ResolverConfig{})
	assert.Equal(t, "http://127.0.0.1:8000", r.BaseURL())
}

func TestValidatedBaseURLCachesWithinTTL(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewResolver(EnvEmulator, ResolverConfig{LoopbackURL: srv.URL})
	now := time.Now()
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		url, err := r.ValidatedBaseURL(context.Background())
		require.NoError(t, err)
		assert.Equal(t, srv.URL, url)
	}
	assert.Equal(t, int32(1), probes.Load(), "repeat calls within the TTL reuse the cached result")

	now = now.Add(resolveTTL + time.Second)
	_, err := r.ValidatedBaseURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), probes.Load(), "an expired cache triggers a fresh probe")
}

func TestValidatedBaseURLProbeFailure(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewResolver(EnvEmulator, ResolverConfig{LoopbackURL: srv.URL})

	_, err := r.ValidatedBaseURL(context.Background())
	require.Error(t, err)

	var ce *ConnectivityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, srv.URL, ce.URL)

	// failures are never cached
	_, err = r.ValidatedBaseURL(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), probes.Load())
}
