package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRemoteBackend_CompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpRemoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Prompt)
		json.NewEncoder(w).Encode(httpRemoteResponse{Completion: "world"})
	}))
	defer srv.Close()

	b := NewHTTPRemoteBackend(Config{EndpointURL: srv.URL, TimeoutSeconds: 5})
	out, err := b.Complete(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "world", out)
}

func TestHTTPRemoteBackend_RateLimitedMapsToErrRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := NewHTTPRemoteBackend(Config{EndpointURL: srv.URL, TimeoutSeconds: 5})
	_, err := b.Complete(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestHTTPRemoteBackend_NonOKStatusMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewHTTPRemoteBackend(Config{EndpointURL: srv.URL, TimeoutSeconds: 5})
	_, err := b.Complete(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestHTTPRemoteBackend_MalformedBodyMapsToMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	b := NewHTTPRemoteBackend(Config{EndpointURL: srv.URL, TimeoutSeconds: 5})
	_, err := b.Complete(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestHTTPRemoteBackend_RespectsConfiguredRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(httpRemoteResponse{Completion: "ok"})
	}))
	defer srv.Close()

	b := NewHTTPRemoteBackend(Config{EndpointURL: srv.URL, TimeoutSeconds: 5, RateLimitPerHour: 1})
	_, err := b.Complete(context.Background(), "first", nil)
	require.NoError(t, err)

	_, err = b.Complete(context.Background(), "second", nil)
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestHTTPRemoteBackend_ProbeUsesComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(httpRemoteResponse{Completion: "pong"})
	}))
	defer srv.Close()

	b := NewHTTPRemoteBackend(Config{EndpointURL: srv.URL, TimeoutSeconds: 5})
	assert.NoError(t, b.Probe(context.Background()))
}
