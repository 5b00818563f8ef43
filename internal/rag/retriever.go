package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/metrics"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

const (
	defaultTopK    = 3
	defaultMaxTopK = 20
)

// RetrieverOptions configures a Retriever. MaxTopK caps the per-request top-k.
type RetrieverOptions struct {
	TopK     int
	MaxTopK  int
	MinScore float64
	Reranker Reranker
	Metrics  *metrics.Metrics
}

type Retriever struct {
	index    vectorstore.Index
	embedder embedding.Embedder
	opts     RetrieverOptions
}

func NewRetriever(index vectorstore.Index, embedder embedding.Embedder, opts RetrieverOptions) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = defaultMaxTopK
	}
	opts.MaxTopK = max(opts.MaxTopK, opts.TopK)
	return &Retriever{index: index, embedder: embedder, opts: opts}
}

// Retrieve embeds the question with the ingestion embedder and returns at
// most topK chunks by descending score. topK <= 0 uses the configured
// default. An empty index yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) (*RetrievalResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrMalformedInput)
	}
	if topK <= 0 {
		topK = r.opts.TopK
	}
	topK = min(topK, r.opts.MaxTopK)
	defer r.opts.Metrics.ObserveRetrieval(time.Now())

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", classify(err))
	}

	matches, err := r.index.Search(ctx, vec, vectorstore.SearchOptions{
		TopK:     topK,
		MinScore: r.opts.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", classify(err))
	}

	result := &RetrievalResult{Question: question, Chunks: make([]ScoredChunk, 0, len(matches))}
	for _, m := range matches {
		result.Chunks = append(result.Chunks, ScoredChunk{
			Text:       m.Payload.Text,
			Score:      m.Score,
			Hash:       m.ID,
			DocumentID: m.Payload.DocumentID,
			Filename:   m.Payload.Filename,
			Ordinal:    m.Payload.Ordinal,
		})
	}

	if r.opts.Reranker != nil && len(result.Chunks) > 1 {
		reranked, err := r.opts.Reranker.Rerank(ctx, question, result.Chunks)
		if err != nil {
			slog.Warn("rerank failed, keeping vector order", "error", err)
		} else {
			result.Chunks = reranked
		}
	}

	if len(result.Chunks) > topK {
		result.Chunks = result.Chunks[:topK]
	}
	slog.Debug("retrieved chunks", "count", len(result.Chunks), "top_k", topK)
	return result, nil
}
