package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/pkg/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(prefix string, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(out, " ")
}

func newTestComposer(gw llm.Gateway, contextTokens int) *Composer {
	return NewComposer(gw, ComposerOptions{
		Model:         "gen-model",
		MaxTokens:     256,
		Temperature:   0.2,
		ContextTokens: contextTokens,
		CountTokens:   tokenizer.Estimate,
	})
}

func TestComposer_Answer(t *testing.T) {
	ctx := context.Background()
	result := &RetrievalResult{Chunks: []ScoredChunk{
		{Text: "Bravo two.", Score: 0.98},
		{Text: "Alpha one.", Score: 0.11},
	}}

	t.Run("Should ground the answer in retrieved context", func(t *testing.T) {
		gw := &chatRecorder{reply: "  Bravo is two.  "}
		ans, err := newTestComposer(gw, 1000).Answer(ctx, AnswerRequest{Question: "What is bravo?", Result: result})
		require.NoError(t, err)
		assert.Equal(t, "Bravo is two.", ans.Text)
		assert.Equal(t, ModeContext, ans.Mode)
		assert.Equal(t, []string{"Bravo two.", "Alpha one."}, ans.Context)
		assert.Len(t, ans.Sources, 2)
		assert.Equal(t, "gen-model", ans.Model)
		assert.Equal(t, 42, ans.Tokens)

		req := gw.last()
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, DefaultSystemPrompt, req.Messages[0].Content)
		assert.Contains(t, req.Messages[1].Content, "[Source 1] (score: 0.980)\nBravo two.")
		assert.Contains(t, req.Messages[1].Content, "[Source 2]")
		assert.True(t, strings.HasSuffix(req.Messages[1].Content, "Question: What is bravo?"))
		assert.Equal(t, 256, req.MaxTokens)
		assert.InDelta(t, 0.2, req.Temperature, 1e-9)
	})

	t.Run("Should answer generally without context", func(t *testing.T) {
		gw := &chatRecorder{reply: "General answer."}
		ans, err := newTestComposer(gw, 1000).Answer(ctx, AnswerRequest{Question: "What is bravo?", Result: &RetrievalResult{}})
		require.NoError(t, err)
		assert.Equal(t, ModeGeneral, ans.Mode)
		assert.Empty(t, ans.Context)
		assert.Empty(t, ans.Sources)

		req := gw.last()
		assert.Equal(t, GeneralSystemPrompt, req.Messages[0].Content)
		assert.Equal(t, "What is bravo?", req.Messages[len(req.Messages)-1].Content)
	})

	t.Run("Should report generation failures", func(t *testing.T) {
		gw := &chatRecorder{err: errors.New("model exploded")}
		_, err := newTestComposer(gw, 1000).Answer(ctx, AnswerRequest{Question: "What is bravo?", Result: result})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGeneration)
		assert.NotErrorIs(t, err, ErrTransient)
		assert.Contains(t, err.Error(), "model exploded")
	})

	t.Run("Should mark unavailable providers as transient", func(t *testing.T) {
		gw := &chatRecorder{err: fmt.Errorf("chat: %w", llm.ErrUnavailable)}
		_, err := newTestComposer(gw, 1000).Answer(ctx, AnswerRequest{Question: "What is bravo?", Result: result})
		assert.ErrorIs(t, err, ErrGeneration)
		assert.ErrorIs(t, err, ErrTransient)
	})

	t.Run("Should fail when the model replies with nothing", func(t *testing.T) {
		gw := &chatRecorder{reply: "  "}
		_, err := newTestComposer(gw, 1000).Answer(ctx, AnswerRequest{Question: "What is bravo?", Result: &RetrievalResult{}})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGeneration)
		assert.Contains(t, err.Error(), "empty answer")
	})

	t.Run("Should reject blank question", func(t *testing.T) {
		gw := &chatRecorder{}
		_, err := newTestComposer(gw, 1000).Answer(ctx, AnswerRequest{Question: " ", Result: result})
		assert.ErrorIs(t, err, ErrMalformedInput)
		assert.Empty(t, gw.requests)
	})

	t.Run("Should place history between system prompt and question", func(t *testing.T) {
		gw := &chatRecorder{reply: "ok"}
		history := []llm.Message{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		}
		_, err := newTestComposer(gw, 1000).Answer(ctx, AnswerRequest{Question: "follow up", Result: result, History: history})
		require.NoError(t, err)

		req := gw.last()
		require.Len(t, req.Messages, 4)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "earlier question", req.Messages[1].Content)
		assert.Equal(t, "earlier answer", req.Messages[2].Content)
		assert.Equal(t, "user", req.Messages[3].Role)
		assert.Contains(t, req.Messages[3].Content, "follow up")
	})
}

func TestComposer_ContextBudget(t *testing.T) {
	gw := &chatRecorder{reply: "ok"}
	result := &RetrievalResult{Chunks: []ScoredChunk{
		{Text: words("a", 30), Score: 0.9},
		{Text: words("b", 30), Score: 0.8},
		{Text: words("c", 30), Score: 0.7},
	}}

	ans, err := newTestComposer(gw, 60).Answer(context.Background(), AnswerRequest{Question: "q", Result: result})
	require.NoError(t, err)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, words("a", 30), ans.Context[0])
	assert.Equal(t, words("b", 8), ans.Context[1])
	assert.NotContains(t, gw.last().Messages[1].Content, "c0")
}

func TestComposer_PromptBudget(t *testing.T) {
	ctx := context.Background()
	budgeted := func(gw llm.Gateway, promptTokens int) *Composer {
		return NewComposer(gw, ComposerOptions{
			Model:         "gen-model",
			ContextTokens: 1000,
			PromptTokens:  promptTokens,
			SystemPrompt:  "sys",
			CountTokens:   tokenizer.Estimate,
		})
	}
	promptSize := func(req llm.ChatRequest) int {
		total := 0
		for _, m := range req.Messages {
			total += tokenizer.Estimate(m.Content)
		}
		return total
	}
	result := &RetrievalResult{Chunks: []ScoredChunk{{Text: words("a", 30), Score: 0.9}}}

	t.Run("Should reject a question larger than the prompt", func(t *testing.T) {
		gw := &chatRecorder{reply: "ok"}
		_, err := budgeted(gw, 100).Answer(ctx, AnswerRequest{Question: words("q", 200), Result: result})
		require.ErrorIs(t, err, ErrMalformedInput)
		assert.Empty(t, gw.requests)
	})

	t.Run("Should drop the oldest history turns first", func(t *testing.T) {
		gw := &chatRecorder{reply: "ok"}
		history := []llm.Message{
			{Role: "user", Content: words("h", 9)},
			{Role: "assistant", Content: words("i", 9)},
			{Role: "user", Content: words("j", 9)},
		}
		ans, err := budgeted(gw, 80).Answer(ctx, AnswerRequest{Question: "follow up", Result: result, History: history})
		require.NoError(t, err)
		assert.Equal(t, []string{words("a", 30)}, ans.Context)

		req := gw.last()
		require.Len(t, req.Messages, 4)
		assert.Equal(t, words("i", 9), req.Messages[1].Content)
		assert.Equal(t, words("j", 9), req.Messages[2].Content)
		assert.LessOrEqual(t, promptSize(req), 80)
	})

	t.Run("Should shrink the context for a long question", func(t *testing.T) {
		gw := &chatRecorder{reply: "ok"}
		ans, err := budgeted(gw, 40).Answer(ctx, AnswerRequest{Question: words("q", 15), Result: result})
		require.NoError(t, err)
		require.Len(t, ans.Context, 1)
		assert.Equal(t, words("a", 9), ans.Context[0])
		assert.True(t, strings.HasSuffix(gw.last().Messages[1].Content, "Question: "+words("q", 15)))
	})
}

func TestTruncateToTokens(t *testing.T) {
	text := words("w", 10)
	assert.Equal(t, text, truncateToTokens(text, 100, tokenizer.Estimate))
	assert.Equal(t, words("w", 2), truncateToTokens(text, 2, tokenizer.Estimate))
	assert.Equal(t, "", truncateToTokens(text, 0, tokenizer.Estimate))
}
