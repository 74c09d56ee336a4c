package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katakuxiko/ragdocs/internal/config"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLLMClientEmbeddingsRestoreInputOrder(t *testing.T) {
	var got map[string]any
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		// провайдер вправе вернуть data не по порядку
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"model":  "text-embedding-3-large",
			"data": []any{
				map[string]any{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				map[string]any{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
			"usage": map[string]any{"prompt_tokens": 4, "total_tokens": 4},
		})
	})

	llm := NewLLMClient(&config.Config{LMBaseURL: srv.URL + "/v1", LMAPIKey: "sk-test", EmbedModel: "text-embedding-3-large", ChatModel: "gpt-4o-mini", EmbedDim: 2})
	vecs, err := llm.CreateEmbeddings(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "text-embedding-3-large", got["model"])
	assert.Equal(t, []any{"first", "second"}, got["input"])
	assert.Equal(t, float64(2), got["dimensions"])
}

func TestLLMClientCompleteReportsUsage(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "  answer  "},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
		})
	})

	llm := NewLLMClient(&config.Config{LMBaseURL: srv.URL + "/v1", LMAPIKey: "x", EmbedModel: "e", ChatModel: "gpt-4o-mini"})
	out, err := llm.Complete(context.Background(), []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, Completion{Text: "answer", PromptTokens: 120, CompletionTokens: 30}, out)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.2, got.Temperature, 1e-6)
	assert.Equal(t, "gpt-4o-mini", llm.ChatModel())
}

func TestLLMClientProviderErrors(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"message": "overloaded", "type": "server_error"}})
	})
	llm := NewLLMClient(&config.Config{LMBaseURL: srv.URL + "/v1", LMAPIKey: "x", EmbedModel: "nomic-embed", ChatModel: "m"})

	_, err := llm.CreateEmbeddings(context.Background(), []string{"a"})
	assert.True(t, errors.Is(err, ErrProvider))
	_, err = llm.Complete(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrProvider))
	_, err = llm.ListModels(context.Background())
	assert.True(t, errors.Is(err, ErrProvider))
}

func TestLLMClientAzureDeployment(t *testing.T) {
	var gotPath, gotVersion, gotKey string
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"data":   []any{map[string]any{"object": "embedding", "index": 0, "embedding": []float32{0.5}}},
		})
	})

	llm := NewLLMClient(&config.Config{
		AzureOpenAIEndpoint:   srv.URL,
		AzureOpenAIAPIKey:     "az-key",
		AzureOpenAIAPIVersion: "2024-07-01-preview",
		EmbedModel:            "my-embed-deployment",
		ChatModel:             "my-chat",
	})
	vecs, err := llm.CreateEmbeddings(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5}}, vecs)
	assert.Equal(t, "/openai/deployments/my-embed-deployment/embeddings", gotPath)
	assert.Equal(t, "2024-07-01-preview", gotVersion)
	assert.Equal(t, "az-key", gotKey)
}

func TestLLMClientListModels(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": []any{
			map[string]any{"id": "gpt-4o-mini", "object": "model", "owned_by": "openai"},
		}})
	})
	llm := NewLLMClient(&config.Config{LMBaseURL: srv.URL + "/v1", LMAPIKey: "x"})
	models, err := llm.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "gpt-4o-mini", models[0].ID)
}
