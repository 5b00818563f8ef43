package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

// fakeOllama serves /api/embed with vectors of the given size.
func fakeOllama(t *testing.T, dim int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([][]float32, len(req.Input))
		for i := range out {
			out[i] = make([]float32, dim)
			out[i][0] = 1
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		VectorStore: config.VectorStoreConfig{Backend: "memory", Metric: "cosine", Dimension: 768, Collection: "rag_documents"},
		LLM: config.LLMConfig{
			HFKey:           "hf_test",
			OllamaURL:       fakeOllama(t, 768),
			DefaultProvider: "huggingface",
			DefaultModel:    "mistral",
			MaxRetries:      1,
		},
		Embedding: config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text", CacheSize: 16},
		RAG:       config.RAGConfig{ChunkSize: 1500, ChunkStrategy: "sentence", TopK: 3, MaxTopK: 20, ContextTokens: 3000, PromptTokens: 4096, MaxTokens: 512},
		Server:    config.ServerConfig{RequestTimeout: 30 * time.Second},
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("Should wire the memory backend", func(t *testing.T) {
		a, err := New(ctx, memoryConfig(t))
		require.NoError(t, err)
		defer a.Close()

		assert.IsType(t, &vectorstore.MemoryStore{}, a.Index)
		assert.Nil(t, a.Cache)
		assert.NotNil(t, a.RAG)
		assert.NotNil(t, a.Documents)
		assert.NoError(t, a.Index.Ping(ctx))
	})

	t.Run("Should wrap the index with the exists cache", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := memoryConfig(t)
		cfg.Redis.Addr = mr.Addr()

		a, err := New(ctx, cfg)
		require.NoError(t, err)
		defer a.Close()

		assert.IsType(t, &vectorstore.CachedIndex{}, a.Index)
		require.NotNil(t, a.Cache)
		assert.NoError(t, a.Cache.Ping(ctx))
	})

	t.Run("Should run without cache when redis is down", func(t *testing.T) {
		cfg := memoryConfig(t)
		cfg.Redis.Addr = "127.0.0.1:1"

		a, err := New(ctx, cfg)
		require.NoError(t, err)
		defer a.Close()
		assert.Nil(t, a.Cache)
	})

	t.Run("Should report configuration errors", func(t *testing.T) {
		cfg := memoryConfig(t)
		cfg.LLM.HFKey = ""
		_, err := New(ctx, cfg)
		require.ErrorIs(t, err, rag.ErrConfiguration)
		assert.Contains(t, err.Error(), "HF_API_KEY")
	})

	t.Run("Should refuse an embedder whose size disagrees with the index", func(t *testing.T) {
		cfg := memoryConfig(t)
		cfg.LLM.OllamaURL = fakeOllama(t, 1536)

		_, err := New(ctx, cfg)
		require.ErrorIs(t, err, rag.ErrConfiguration)
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
		assert.Contains(t, err.Error(), "1536")
	})

	t.Run("Should start when the embedder is unreachable", func(t *testing.T) {
		cfg := memoryConfig(t)
		cfg.LLM.OllamaURL = "http://127.0.0.1:1"
		cfg.LLM.MaxRetries = 0

		a, err := New(ctx, cfg)
		require.NoError(t, err)
		a.Close()
	})
}
