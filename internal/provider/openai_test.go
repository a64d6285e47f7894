package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOpenAI(OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     server.URL + "/v1",
		ChatModel:   "gpt-4o-mini",
		Temperature: 0.7,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{}, nil)
	assert.Error(t, err)
}

func TestNewOpenAIDefaults(t *testing.T) {
	client, err := NewOpenAI(OpenAIConfig{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultChatModel, client.Model())
	assert.Equal(t, DefaultEmbeddingModel, string(client.embeddingModel))
}

func TestEmbedBatchRestoresInputOrder(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 3)

		// Return data intentionally out of order; Index must restore it.
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 2, "embedding": []float32{0.3}},
				{"object": "embedding", "index": 0, "embedding": []float32{0.1}},
				{"object": "embedding", "index": 1, "embedding": []float32{0.2}},
			},
			"model": "text-embedding-3-small",
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0.1}, vectors[0])
	assert.Equal(t, []float32{0.2}, vectors[1])
	assert.Equal(t, []float32{0.3}, vectors[2])
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	client := newTestOpenAI(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no API call expected for empty input")
	})

	vectors, err := client.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedBatchServerError(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "rate limit exceeded"}}`, http.StatusTooManyRequests)
	})

	_, err := client.EmbedBatch(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCompleteBuildsMessageOrder(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}

	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		resp := map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "generated answer"}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	text, err := client.Complete(context.Background(), CompletionRequest{
		System: "be helpful",
		History: []Turn{
			{Role: RoleUser, Content: "earlier question"},
			{Role: RoleAssistant, Content: "earlier answer"},
		},
		Prompt:    "current question",
		MaxTokens: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", text)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "be helpful", got.Messages[0].Content)
	assert.Equal(t, "earlier question", got.Messages[1].Content)
	assert.Equal(t, "earlier answer", got.Messages[2].Content)
	assert.Equal(t, RoleUser, got.Messages[3].Role)
	assert.Equal(t, "current question", got.Messages[3].Content)
}

func TestCompleteEmptyChoices(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{"id": "chatcmpl-1", "object": "chat.completion", "choices": []any{}}
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "q"})
	require.ErrorIs(t, err, ErrUnavailable)
}
