package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/rag"
)

type fakeDocs struct {
	seen map[string]string
}

func (f *fakeDocs) Upload(_ context.Context, req document.UploadRequest) (*rag.IngestSummary, error) {
	data, err := io.ReadAll(io.NewSectionReader(req.Data, 0, req.Size))
	if err != nil {
		return nil, err
	}
	if f.seen == nil {
		f.seen = map[string]string{}
	}
	if _, dup := f.seen[string(data)]; dup {
		return &rag.IngestSummary{Total: 1, Skipped: 1, DocumentSkipped: true}, nil
	}
	f.seen[string(data)] = req.Filename
	return &rag.IngestSummary{Total: 1, Stored: 1}, nil
}

type fakeAsker struct {
	got rag.AskRequest
}

func (f *fakeAsker) Ask(_ context.Context, req rag.AskRequest) (*rag.Answer, error) {
	f.got = req
	return &rag.Answer{
		Text:    "Bravo is two.",
		Mode:    rag.ModeContext,
		Sources: []rag.ScoredChunk{{Text: "Bravo two.", Score: 0.98, Filename: "a.txt", Ordinal: 1}},
	}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestIngestCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "Alpha one.")
	b := writeFile(t, dir, "b.txt", "Alpha one.")

	docs := &fakeDocs{}
	closed := false
	cmd := newRootCommand(func(context.Context) (*services, error) {
		return &services{docs: docs, close: func() { closed = true }}, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"ingest", a, b, filepath.Join(dir, "missing.txt")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.txt")
	assert.True(t, closed)
	assert.Contains(t, out.String(), a+": 1 chunks, 1 stored, 0 skipped, 0 failed")
	assert.Contains(t, out.String(), b+": already processed")
	assert.Equal(t, "a.txt", docs.seen["Alpha one."])
}

func TestAskCommand(t *testing.T) {
	asker := &fakeAsker{}
	cmd := newRootCommand(func(context.Context) (*services, error) {
		return &services{asker: asker, close: func() {}}, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"ask", "-k", "2", "What", "is", "bravo?"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "What is bravo?", asker.got.Question)
	assert.Equal(t, 2, asker.got.TopK)
	assert.Contains(t, out.String(), "Bravo is two.")
	assert.Contains(t, out.String(), "[1] a.txt #1 (score: 0.980) Bravo two.")
}

func TestAskCommand_LoadError(t *testing.T) {
	cmd := newRootCommand(func(context.Context) (*services, error) {
		return nil, errors.New("missing required env vars: HF_API_KEY")
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"ask", "anything"})
	assert.ErrorContains(t, cmd.Execute(), "HF_API_KEY")
}
