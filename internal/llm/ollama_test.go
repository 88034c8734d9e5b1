package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentpm/internal/config"
)

func newFakeOllama(t *testing.T, reply string, gotModel *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if gotModel != nil {
			*gotModel = req.Model
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaInvoke(t *testing.T) {
	var model string
	srv := newFakeOllama(t, "  # Overview\nhello  ", &model)

	inv, err := NewOllamaInvoker(config.LLMConfig{Host: srv.URL, Model: "llama3.1", Timeout: 5 * time.Second})
	require.NoError(t, err)

	out, err := inv.Invoke(context.Background(), "write a prd", "")
	require.NoError(t, err)
	assert.Equal(t, "# Overview\nhello", out)
	assert.Equal(t, "llama3.1", model)

	_, err = inv.Invoke(context.Background(), "write a prd", "ollama:qwen2.5")
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", model)
}

func TestOllamaEmptyResponse(t *testing.T) {
	srv := newFakeOllama(t, "", nil)
	inv, err := NewOllamaInvoker(config.LLMConfig{Host: srv.URL, Model: "llama3.1"})
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), "x", "")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	inv, err := NewOllamaInvoker(config.LLMConfig{Host: srv.URL, Model: "llama3.1"})
	require.NoError(t, err)
	_, err = inv.Invoke(context.Background(), "x", "")
	assert.Error(t, err)
}

func TestNewOllamaInvokerRequiresModel(t *testing.T) {
	_, err := NewOllamaInvoker(config.LLMConfig{Host: "http://localhost:11434"})
	assert.Error(t, err)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
}

func TestInvokerFunc(t *testing.T) {
	var inv Invoker = InvokerFunc(func(_ context.Context, prompt, _ string) (string, error) {
		return "echo: " + prompt, nil
	})
	out, err := inv.Invoke(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}
