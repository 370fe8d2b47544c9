package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-memocache/resilience"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("plain body"))
	})
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title> Example </title></head><body><h1>Hello</h1><p>World</p></body></html>`))
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		w.Write([]byte("late"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchText(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher()
	body, err := f.Fetch(context.Background(), srv.URL+"/text")
	require.NoError(t, err)
	assert.Equal(t, "plain body", body)
}

func TestFetchHTML(t *testing.T) {
	srv := newTestServer(t)

	page, err := NewFetcher().Get(context.Background(), srv.URL+"/html")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "Example", page.Title)
	assert.Contains(t, page.Body, "<h1>Hello</h1>")

	page, err = NewFetcher(WithMarkdown(true)).Get(context.Background(), srv.URL+"/html")
	require.NoError(t, err)
	assert.Contains(t, page.Body, "# Hello")
	assert.Contains(t, page.Body, "World")
	assert.NotContains(t, page.Body, "<h1>")
}

func TestFetchErrors(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher()
	ctx := context.Background()

	_, err := f.Fetch(ctx, "ftp://example.com")
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))

	_, err = f.Fetch(ctx, srv.URL+"/image")
	assert.True(t, errors.Is(err, ErrUnsupportedContentType))

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	var se *StatusError
	if assert.True(t, errors.As(err, &se)) {
		assert.Equal(t, http.StatusNotFound, se.StatusCode)
	}
}

func TestCircuitBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	f := NewFetcher(WithCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour}))

	// client errors never open the circuit
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(ctx, srv.URL+"/missing")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(3), hits.Load())

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(ctx, srv.URL+"/down")
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	}
	_, err := f.Fetch(ctx, srv.URL+"/down")
	assert.True(t, errors.Is(err, resilience.ErrCircuitBreakerOpen), "got %v", err)
	_, err = f.Fetch(ctx, srv.URL+"/missing")
	assert.True(t, errors.Is(err, resilience.ErrCircuitBreakerOpen), "got %v", err)
	assert.Equal(t, int32(5), hits.Load())
}

func TestFetchTimeout(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, srv.URL+"/slow")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}
