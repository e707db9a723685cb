package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamBackend accumulates chunks per session like the real gateway.
type fakeStreamBackend struct {
	mu     sync.Mutex
	chunks map[string][][]byte
}

func (b *fakeStreamBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/stream/start", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.chunks["abc123"] = nil
		b.mu.Unlock()
		w.Write([]byte(`{"status":"success","data":{"session_id":"abc123"}}`))
	})
	mux.HandleFunc("/api/v1/stream/chunk", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		id := r.FormValue("session_id")
		file, _, err := r.FormFile("chunk")
		if err != nil {
			http.Error(w, "no chunk", http.StatusBadRequest)
			return
		}
		defer file.Close()
		buf := make([]byte, 1024)
		n, _ := file.Read(buf)

		b.mu.Lock()
		b.chunks[id] = append(b.chunks[id], buf[:n])
		b.mu.Unlock()
		w.Write([]byte(`{"status":"success","data":{"chunks":1}}`))
	})
	mux.HandleFunc("/api/v1/stream/finalize", func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		b.mu.Lock()
		n := len(b.chunks[r.FormValue("session_id")])
		b.mu.Unlock()
		if n == 0 {
			http.Error(w, `{"detail":"session has no chunks"}`, http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"success","data":{"label":"Wheezing","confidence":0.78}}`))
	})
	return mux
}

func TestStreamSessionRoundTrip(t *testing.T) {
	backend := &fakeStreamBackend{chunks: map[string][][]byte{}}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{})

	sess, err := c.StartStream(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", sess.ID)

	require.NoError(t, sess.SendChunk(context.Background(), []byte("slice-1")))
	require.NoError(t, sess.SendChunk(context.Background(), []byte("slice-2")))
	assert.Equal(t, [][]byte{[]byte("slice-1"), []byte("slice-2")}, backend.chunks["abc123"])

	res, err := sess.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Wheezing", res.Label)
	assert.Equal(t, 0.78, res.Confidence)
}

func TestStartStreamRejectsMissingSessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{}}`))
	}))
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{})
	_, err := c.StartStream(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session_id")
}

func TestFinalizeSurfacesServerError(t *testing.T) {
	backend := &fakeStreamBackend{chunks: map[string][][]byte{}}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	c := New(resolverFor(srv.URL), Options{})
	sess, err := c.StartStream(context.Background())
	require.NoError(t, err)

	// finalize without any chunks
	_, err = sess.Finalize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session has no chunks")
}
