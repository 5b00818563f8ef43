package rag

import (
	"context"
	"testing"

	"github.com/nikhilbhutani/docqa/internal/vectorstore"
	"github.com/nikhilbhutani/docqa/pkg/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(idx vectorstore.Index, emb *mapEmbedder, gw *chatRecorder) *Service {
	return NewService(
		NewPipeline(idx, emb, sentenceOpts(15)),
		NewRetriever(idx, emb, RetrieverOptions{TopK: 3}),
		NewComposer(gw, ComposerOptions{Model: "gen", ContextTokens: 500, CountTokens: tokenizer.Estimate}),
	)
}

func TestService_IngestThenAsk(t *testing.T) {
	ctx := context.Background()
	idx := newFlakyIndex()
	emb := newMapEmbedder(threeChunkVectors())
	gw := &chatRecorder{reply: "Bravo is two."}
	svc := newTestService(idx, emb, gw)

	first, err := svc.Ingest(ctx, IngestRequest{Filename: "a.txt", Text: threeSentences})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Stored)

	again, err := svc.Ingest(ctx, IngestRequest{Filename: "a-copy.txt", Text: threeSentences})
	require.NoError(t, err)
	assert.True(t, again.DocumentSkipped)
	assert.Equal(t, 3, again.Skipped)
	assert.Equal(t, 3, emb.callCount())

	ans, err := svc.Ask(ctx, AskRequest{Question: "Tell me about bravo"})
	require.NoError(t, err)
	assert.Equal(t, "Bravo is two.", ans.Text)
	assert.Equal(t, ModeContext, ans.Mode)
	require.NotEmpty(t, ans.Context)
	assert.Equal(t, "Bravo two.", ans.Context[0])
}

func TestService_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("Should answer generally on an empty index", func(t *testing.T) {
		gw := &chatRecorder{reply: "No idea."}
		svc := newTestService(newFlakyIndex(), newMapEmbedder(nil), gw)
		ans, err := svc.Ask(ctx, AskRequest{Question: "anything"})
		require.NoError(t, err)
		assert.Equal(t, ModeGeneral, ans.Mode)
	})

	t.Run("Should not call the model when retrieval fails", func(t *testing.T) {
		idx := newFlakyIndex()
		idx.searchErr = vectorstore.ErrUnavailable
		gw := &chatRecorder{reply: "unused"}
		svc := newTestService(idx, newMapEmbedder(nil), gw)
		_, err := svc.Ask(ctx, AskRequest{Question: "anything"})
		assert.ErrorIs(t, err, ErrTransient)
		assert.Empty(t, gw.requests)
	})

	t.Run("Should honour per request top k", func(t *testing.T) {
		idx := newFlakyIndex()
		emb := newMapEmbedder(threeChunkVectors())
		gw := &chatRecorder{reply: "ok"}
		svc := newTestService(idx, emb, gw)
		_, err := svc.Ingest(ctx, IngestRequest{Filename: "a.txt", Text: threeSentences})
		require.NoError(t, err)

		ans, err := svc.Ask(ctx, AskRequest{Question: "Tell me about bravo", TopK: 1})
		require.NoError(t, err)
		assert.Len(t, ans.Sources, 1)
	})
}
