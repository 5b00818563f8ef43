package rag

import (
	"context"
	"errors"
	"sync"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

// mapEmbedder returns fixed vectors per text and counts calls.
type mapEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	fail     map[string]error
	calls    []string
}

func newMapEmbedder(vectors map[string][]float32) *mapEmbedder {
	return &mapEmbedder{
		vectors:  vectors,
		fallback: []float32{0.5, 0.5, 0.5},
		fail:     map[string]error{},
	}
}

func (e *mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	if err, ok := e.fail[text]; ok {
		return nil, err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return e.fallback, nil
}

func (e *mapEmbedder) Dimension() int { return 3 }
func (e *mapEmbedder) Model() string  { return "test-embed" }

func (e *mapEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// cancelingEmbedder cancels the caller's context once it has served after
// embeddings.
type cancelingEmbedder struct {
	*mapEmbedder
	after  int
	cancel context.CancelFunc
}

func (e *cancelingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.mapEmbedder.Embed(ctx, text)
	if e.callCount() >= e.after {
		e.cancel()
	}
	return vec, err
}

// flakyIndex wraps a memory store and can fail selected operations.
type flakyIndex struct {
	*vectorstore.MemoryStore
	existsErr   error
	searchErr   error
	docErr      error
	upsertCalls int
	markers     []vectorstore.DocumentMarker
}

func (f *flakyIndex) Exists(ctx context.Context, id string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.MemoryStore.Exists(ctx, id)
}

func (f *flakyIndex) Upsert(ctx context.Context, rec vectorstore.Record) error {
	f.upsertCalls++
	return f.MemoryStore.Upsert(ctx, rec)
}

func (f *flakyIndex) Search(ctx context.Context, v []float32, opts vectorstore.SearchOptions) ([]vectorstore.Match, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.MemoryStore.Search(ctx, v, opts)
}

func (f *flakyIndex) DocumentExists(ctx context.Context, id string) (bool, error) {
	if f.docErr != nil {
		return false, f.docErr
	}
	return f.MemoryStore.DocumentExists(ctx, id)
}

func (f *flakyIndex) MarkDocument(ctx context.Context, m vectorstore.DocumentMarker) error {
	f.markers = append(f.markers, m)
	return f.MemoryStore.MarkDocument(ctx, m)
}

func newFlakyIndex() *flakyIndex {
	mem, err := vectorstore.NewMemoryStore(3, vectorstore.MetricCosine)
	if err != nil {
		panic(err)
	}
	return &flakyIndex{MemoryStore: mem}
}

// chatRecorder is a Gateway that records chat requests and replies with a
// canned answer.
type chatRecorder struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []llm.ChatRequest
}

func (c *chatRecorder) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.ChatResponse{Content: c.reply, Model: req.Model, TotalTokens: 42}, nil
}

func (c *chatRecorder) Embed(context.Context, llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return nil, errors.New("not implemented")
}

func (c *chatRecorder) Provider(string) (llm.Provider, error) { return nil, errors.New("not implemented") }
func (c *chatRecorder) ListModels() []llm.ModelInfo            { return nil }

func (c *chatRecorder) last() llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

const threeSentences = "Alpha one. Bravo two. Charlie three."

func threeChunkVectors() map[string][]float32 {
	return map[string][]float32{
		"Alpha one.":          {1, 0, 0},
		"Bravo two.":          {0, 1, 0},
		"Charlie three.":      {0, 0, 1},
		"Tell me about bravo": {0.1, 0.9, 0.1},
	}
}
