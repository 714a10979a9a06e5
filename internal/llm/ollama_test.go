package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chronicle/internal/llm"
)

func newTestClient(url string) *llm.OllamaClient {
	return llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL:           url,
		Model:             "test-model",
		Timeout:           2 * time.Second,
		RequestsPerSecond: -1,
		Breaker:           llm.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute},
	})
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.Equal(t, false, req["stream"])
		assert.Equal(t, "json", req["format"])
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"kind":"event"}`, "done": true})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	out, err := client.CompleteJSON(context.Background(), "annotate")
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"event"}`, out)
	assert.Equal(t, "test-model", client.GetModel())
}

// TestOllamaCircuitOpens verifies repeated server failures trip the breaker so
// later calls fail fast without reaching the server.
func TestOllamaCircuitOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	for range 2 {
		_, err := client.Complete(context.Background(), "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	}

	_, err := client.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrCircuitOpen))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "open", client.CircuitState())
}

func TestOllamaListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5:7b"},{"name":"llama3"}]}`))
		case "/api/version":
			_, _ = w.Write([]byte(`{"version":"0.5.0"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	require.NoError(t, client.HealthCheck(context.Background()))
	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5:7b", "llama3"}, models)
}

func TestOllamaRateLimiterHonoursContext(t *testing.T) {
	client := llm.NewOllamaClient(llm.OllamaConfig{BaseURL: "http://127.0.0.1:0", RequestsPerSecond: 0.001, Burst: 1})

	// The first call consumes the only token; it fails on the dial, which is fine.
	_, _ = client.Complete(context.Background(), "first")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestNewTextGenerator(t *testing.T) {
	gen, err := llm.NewTextGenerator(llm.ProviderConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = llm.NewTextGenerator(llm.ProviderConfig{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", gen.GetModel())

	_, err = llm.NewTextGenerator(llm.ProviderConfig{Provider: "telepathy"})
	assert.Error(t, err)
}
