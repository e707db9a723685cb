package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	// minimal RIFF header plus a little payload, enough to upload
	data := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 100)...)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func resolverFor(url string) *Resolver {
	return NewResolver(EnvEmulator, ResolverConfig{LoopbackURL: url})
}

func TestAnalyzeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/unified", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "breath", r.FormValue("task_type"))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "sample.wav", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"predictions": {"Clear": 0.92, "Wheezing": 0.05, "Crackles": 0.03},
			"predicted_label": "Clear",
			"confidence": 0.92,
			"processing_time": 1.8
		}`))
	}))
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{})
	res, err := c.Analyze(context.Background(), writeTempAudio(t), domain.TaskBreath)
	require.NoError(t, err)

	assert.False(t, res.HasError())
	assert.Equal(t, "Clear", res.Label)
	assert.Equal(t, 0.92, res.Confidence)
	assert.Equal(t, 0.92, res.Predictions["Clear"])
	assert.Equal(t, "API", res.Source)
	assert.Equal(t, 1.8, res.ProcessingTime)
}

func TestAnalyzeEnvelopedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"label":"Wheezing","confidence":0.81}}`))
	}))
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{})
	res, err := c.Analyze(context.Background(), writeTempAudio(t), domain.TaskBreath)
	require.NoError(t, err)

	assert.Equal(t, "Wheezing", res.Label)
	assert.Equal(t, 0.81, res.Confidence)
}

func TestAnalyzeServerErrorUnparseable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html>panic</html>"))
	}))
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{})
	res, err := c.Analyze(context.Background(), writeTempAudio(t), domain.TaskBreath)
	require.NoError(t, err)

	assert.True(t, res.HasError())
	assert.Equal(t, "Analysis failed. Please try again.", res.Error)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, "API", res.Source)
}

func TestAnalyzeServerErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"unsupported sample rate"}`))
	}))
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{})
	res, err := c.Analyze(context.Background(), writeTempAudio(t), domain.TaskBreath)
	require.NoError(t, err)

	assert.Equal(t, "unsupported sample rate", res.Error)
}

func TestAnalyzeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{Timeout: 50 * time.Millisecond})
	res, err := c.Analyze(context.Background(), writeTempAudio(t), domain.TaskBreath)
	require.NoError(t, err)

	assert.True(t, res.HasError())
	assert.Equal(t, "Request timed out. Please try again.", res.Error)
	assert.Equal(t, "error", res.Source)
}

func TestAnalyzeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(resolverFor(url), Options{})
	res, err := c.Analyze(context.Background(), writeTempAudio(t), domain.TaskBreath)
	require.NoError(t, err)

	assert.True(t, res.HasError())
	assert.Equal(t, "Could not reach the analysis service. Please check your connection.", res.Error)
}

func TestAnalyzeMissingFile(t *testing.T) {
	c := New(resolverFor("http://127.0.0.1:0"), Options{})

	_, err := c.Analyze(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), domain.TaskBreath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAudioFileMissing))
}

func TestAnalyzeRetryOnceOnTimeout(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
			return
		}
		w.Write([]byte(`{"label":"Clear","confidence":0.9}`))
	}))
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{Timeout: 100 * time.Millisecond, Retry: RetryOnceOnTimeout})
	res, err := c.Analyze(context.Background(), writeTempAudio(t), domain.TaskBreath)
	require.NoError(t, err)

	assert.Equal(t, int32(2), attempts.Load())
	assert.False(t, res.HasError())
	assert.Equal(t, "Clear", res.Label)
}

func TestAnalyzeNoRetryByDefault(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{Timeout: 50 * time.Millisecond})
	res, err := c.Analyze(context.Background(), writeTempAudio(t), domain.TaskBreath)
	require.NoError(t, err)

	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, "Request timed out. Please try again.", res.Error)
}

func TestAnalyzeFallbackUsesNextEndpoint(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"label":"Clear","confidence":0.88}`))
	}))
	defer live.Close()

	c := New(resolverFor(live.URL), Options{})
	res, err := c.AnalyzeFallback(context.Background(), writeTempAudio(t), domain.TaskBreath,
		[]string{deadURL + "/api/v1/unified", live.URL + "/api/v1/unified"})
	require.NoError(t, err)

	assert.False(t, res.HasError())
	assert.Equal(t, "Clear", res.Label)
}

func TestAnalyzeFallbackAllFail(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	c := New(resolverFor(deadURL), Options{})
	res, err := c.AnalyzeFallback(context.Background(), writeTempAudio(t), domain.TaskBreath,
		[]string{deadURL + "/api/v1/unified", deadURL + "/api/v1/unified"})
	require.NoError(t, err)

	assert.True(t, res.HasError())
	assert.Contains(t, res.Error, "All 2 analysis endpoints failed")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		w.Write([]byte(`{"status":"healthy","model_version":"panns-2.1","labels":["Clear","Wheezing"],"local_model_available":true}`))
	}))
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{})
	hs, err := c.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "healthy", hs.Status)
	assert.Equal(t, "panns-2.1", hs.ModelVersion)
	assert.Equal(t, []string{"Clear", "Wheezing"}, hs.Labels)
	assert.True(t, hs.LocalModelAvailable)
}
