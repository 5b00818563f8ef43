package rag

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/docqa/internal/llm"
)

// Service wires the write path and the read path together for callers
// such as the HTTP API, the CLI and the queue worker.
type Service struct {
	pipeline  *Pipeline
	retriever *Retriever
	composer  *Composer
}

func NewService(p *Pipeline, r *Retriever, c *Composer) *Service {
	return &Service{pipeline: p, retriever: r, composer: c}
}

func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestSummary, error) {
	return s.pipeline.Ingest(ctx, req)
}

type AskRequest struct {
	Question string
	TopK     int
	History  []llm.Message
}

// Ask retrieves context for the question and composes an answer. A
// retrieval failure is returned as is; no answer is attempted without it.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	result, err := s.retriever.Retrieve(ctx, req.Question, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return s.composer.Answer(ctx, AnswerRequest{
		Question: req.Question,
		Result:   result,
		History:  req.History,
	})
}
