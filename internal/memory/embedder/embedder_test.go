package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewMockEmbedder()

	a, err := e.Embed(ctx, "same text")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "same text")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "other text")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, e.Dimensions())
	assert.Equal(t, []string{"same text", "same text", "other text"}, e.EmbeddedTexts())
}

func TestMockEmbedder_Error(t *testing.T) {
	e := NewMockEmbedder()
	e.SetEmbedError(errors.New("quota exceeded"))

	_, err := e.Embed(context.Background(), "x")
	assert.EqualError(t, err, "quota exceeded")

	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestCreateEmbedder(t *testing.T) {
	e, err := CreateEmbedder(EmbedderConfig{Provider: "mock", Model: "tiny"})
	require.NoError(t, err)
	assert.Equal(t, "tiny", e.Model())

	_, err = CreateEmbedder(EmbedderConfig{Provider: "openai"})
	assert.Error(t, err, "api key is required")

	_, err = CreateEmbedder(EmbedderConfig{Provider: "word2vec"})
	assert.Error(t, err)
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	var gotInput []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInput = req.Input
		assert.Equal(t, "text-embedding-3-small", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.5, 0.25]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(EmbedderConfig{
		Provider: "openai",
		APIKey:   "test-key",
		BaseURL:  server.URL + "/v1",
	})
	require.NoError(t, err)

	vectors, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, gotInput)
	assert.Equal(t, [][]float64{{1.0, 0.0}, {0.5, 0.25}}, vectors)
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, "text-embedding-3-small", e.Model())
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(EmbedderConfig{Provider: "openai", APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, e.Health(context.Background()).IsHealthy())
}
