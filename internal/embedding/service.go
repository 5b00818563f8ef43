package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

// Embedder maps text to a dense vector of fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// Service embeds text through the LLM gateway with a fixed provider and model.
type Service struct {
	gateway   llm.Gateway
	provider  string
	model     string
	dimension int
}

func NewService(gw llm.Gateway, provider, model string, dimension int) *Service {
	return &Service{gateway: gw, provider: provider, model: model, dimension: dimension}
}

func (s *Service) Dimension() int { return s.dimension }

func (s *Service) Model() string { return s.model }

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embed: empty text")
	}

	resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
		Provider: s.provider,
		Model:    s.model,
		Input:    []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed: no embedding returned")
	}

	vec := resp.Embeddings[0]
	if s.dimension > 0 && len(vec) != s.dimension {
		return nil, fmt.Errorf("embed: %w: model %s returned dimension %d, expected %d",
			vectorstore.ErrDimensionMismatch, s.model, len(vec), s.dimension)
	}
	return vec, nil
}
