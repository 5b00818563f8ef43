// Package app builds the object graph shared by the API server, the queue
// worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docqa/internal/cache"
	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/database"
	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/metrics"
	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
)

type App struct {
	Config    *config.Config
	Gateway   llm.Gateway
	Index     vectorstore.Index
	Metrics   *metrics.Metrics
	RAG       *rag.Service
	Documents *document.Service
	// Cache is nil when REDIS_ADDR is unset or Redis was unreachable.
	Cache *cache.Cache

	closers []func()
}

// New validates cfg and wires every component. Configuration problems,
// including an index whose dimension disagrees with the embedder, are
// reported wrapped in rag.ErrConfiguration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
	}

	a := &App{Config: cfg, Metrics: metrics.New()}
	a.Gateway = llm.NewGateway(cfg.LLM)

	index, err := a.openIndex(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := index.EnsureCollection(ctx); err != nil {
		a.Close()
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
		}
		return nil, fmt.Errorf("prepare vector index: %w", err)
	}

	if cfg.Redis.Addr != "" {
		a.Cache = a.openCache(ctx)
	}
	if a.Cache != nil {
		index = vectorstore.NewCachedIndex(index, a.Cache, cfg.Redis.ExistsCacheTTL)
	}
	a.Index = index

	embedder := embedding.NewService(a.Gateway, cfg.Embedding.Provider, cfg.Embedding.Model, cfg.VectorStore.Dimension)
	if err := checkEmbedder(ctx, embedder, cfg.Server.RequestTimeout); err != nil {
		a.Close()
		return nil, err
	}
	var queryEmbedder embedding.Embedder = embedder
	if cfg.Embedding.CacheSize > 0 {
		cached, err := embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
		}
		queryEmbedder = cached
	}

	pipeline := rag.NewPipeline(index, embedder, chunker.ChunkOptions{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
		Strategy:     cfg.RAG.ChunkStrategy,
	}, rag.WithMetrics(a.Metrics))

	var reranker rag.Reranker
	if cfg.RAG.Rerank {
		reranker = rag.NewLLMReranker(a.Gateway, cfg.LLM.DefaultProvider, cfg.LLM.DefaultModel)
	}
	retriever := rag.NewRetriever(index, queryEmbedder, rag.RetrieverOptions{
		TopK:     cfg.RAG.TopK,
		MaxTopK:  cfg.RAG.MaxTopK,
		MinScore: cfg.RAG.MinScore,
		Reranker: reranker,
		Metrics:  a.Metrics,
	})

	composer := rag.NewComposer(a.Gateway, rag.ComposerOptions{
		Provider:      cfg.LLM.DefaultProvider,
		Model:         cfg.LLM.DefaultModel,
		MaxTokens:     cfg.RAG.MaxTokens,
		Temperature:   cfg.RAG.Temperature,
		ContextTokens: cfg.RAG.ContextTokens,
		PromptTokens:  cfg.RAG.PromptTokens,
		Metrics:       a.Metrics,
	})

	a.RAG = rag.NewService(pipeline, retriever, composer)
	a.Documents = document.NewService(a.RAG)

	slog.Info("pipeline ready",
		"vector_store", cfg.VectorStore.Backend,
		"collection", cfg.VectorStore.Collection,
		"dimension", cfg.VectorStore.Dimension,
		"metric", cfg.VectorStore.Metric,
		"embedding_model", cfg.Embedding.Model,
		"generation_model", cfg.LLM.DefaultModel,
		"exists_cache", a.Cache != nil,
	)
	return a, nil
}

// checkEmbedder embeds a fixed probe text once so that a model whose output
// size disagrees with VECTOR_DIMENSION fails startup. An unreachable embedder
// is only logged; chunks fail individually until it comes back.
func checkEmbedder(ctx context.Context, embedder embedding.Embedder, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	vec, err := embedder.Embed(ctx, "dimension check")
	switch {
	case errors.Is(err, vectorstore.ErrDimensionMismatch):
		return fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
	case err != nil:
		slog.Warn("embedder unreachable at startup", "model", embedder.Model(), "error", err)
		return nil
	case len(vec) != embedder.Dimension():
		return fmt.Errorf("%w: %w: model %s returned dimension %d, collection uses %d",
			rag.ErrConfiguration, vectorstore.ErrDimensionMismatch, embedder.Model(), len(vec), embedder.Dimension())
	}
	return nil
}

func (a *App) openIndex(ctx context.Context) (vectorstore.Index, error) {
	cfg := a.Config
	vs := cfg.VectorStore
	switch vs.Backend {
	case "qdrant":
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			URL:        vs.QdrantURL,
			APIKey:     vs.QdrantAPIKey,
			Collection: vs.Collection,
			Dimension:  vs.Dimension,
			Metric:     vs.Metric,
			Timeout:    cfg.Server.RequestTimeout,
		})
	case "pgvector":
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		return vectorstore.NewPgVectorStore(pool, vs.Collection, vs.Dimension, vs.Metric)
	case "memory":
		slog.Warn("using in-memory vector store, data is lost on exit")
		return vectorstore.NewMemoryStore(vs.Dimension, vs.Metric)
	}
	return nil, fmt.Errorf("%w: unknown vector store %q", rag.ErrConfiguration, vs.Backend)
}

func (a *App) openCache(ctx context.Context) *cache.Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without exists cache", "error", err)
		rdb.Close()
		return nil
	}
	a.closers = append(a.closers, func() { rdb.Close() })
	return cache.NewCache(rdb, "docqa:"+a.Config.VectorStore.Collection+":")
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
