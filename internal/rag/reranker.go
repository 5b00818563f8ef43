package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nikhilbhutani/docqa/internal/llm"
)

// Reranker re-scores retrieved chunks for better relevance ordering.
type Reranker interface {
	Rerank(ctx context.Context, question string, chunks []ScoredChunk) ([]ScoredChunk, error)
}

// LLMReranker asks the generation model to judge the relevance of each chunk.
type LLMReranker struct {
	gateway  llm.Gateway
	provider string
	model    string
}

func NewLLMReranker(gw llm.Gateway, provider, model string) *LLMReranker {
	return &LLMReranker{gateway: gw, provider: provider, model: model}
}

const rerankPrompt = `You are a relevance scoring assistant. Given a question and a list of text chunks,
score each chunk from 0.0 to 1.0 based on how relevant it is to the question.
Return ONLY a JSON array of objects with "index" and "score" fields. Example:
[{"index": 0, "score": 0.95}, {"index": 1, "score": 0.3}]`

func (r *LLMReranker) Rerank(ctx context.Context, question string, chunks []ScoredChunk) ([]ScoredChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	var sb strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i, truncate(c.Text, 500))
	}

	resp, err := r.gateway.Chat(ctx, llm.ChatRequest{
		Provider: r.provider,
		Model:    r.model,
		Messages: []llm.Message{
			{Role: "system", Content: rerankPrompt},
			{Role: "user", Content: fmt.Sprintf("Question: %s\n\nChunks:\n%s", question, sb.String())},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	var scores []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	content := strings.TrimSpace(resp.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &scores); err != nil {
		return nil, fmt.Errorf("parse rerank scores: %w", err)
	}

	// Chunks the model did not score drop to 0 so vector and judge scores
	// never share one ordering.
	reranked := make([]ScoredChunk, len(chunks))
	copy(reranked, chunks)
	for i := range reranked {
		reranked[i].Score = 0
	}
	for _, s := range scores {
		if s.Index >= 0 && s.Index < len(reranked) {
			reranked[s.Index].Score = s.Score
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked, nil
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
