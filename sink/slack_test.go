package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackPosterSendsText(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	poster := NewSlackPoster(server.URL)
	require.NoError(t, poster.Post(context.Background(), "conflict on 2025-03-10"))
	assert.Equal(t, "conflict on 2025-03-10", got["text"])
}

func TestSlackPosterNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel_not_found", http.StatusNotFound)
	}))
	defer server.Close()

	poster := NewSlackPoster(server.URL)
	err := poster.Post(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestSlackPosterSkipsWhenUnconfigured(t *testing.T) {
	poster := NewSlackPoster("")
	assert.NoError(t, poster.Post(context.Background(), "dropped"))
}
