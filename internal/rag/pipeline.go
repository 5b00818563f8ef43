package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/fingerprint"
	"github.com/nikhilbhutani/docqa/internal/metrics"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
)

const (
	StageExists = "exists"
	StageEmbed  = "embed"
	StageUpsert = "upsert"
)

type IngestRequest struct {
	Filename string
	Text     string
}

// ChunkFailure describes a chunk that could not be stored.
type ChunkFailure struct {
	Ordinal int    `json:"ordinal"`
	Hash    string `json:"hash"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
	Err     error  `json:"-"`
}

// IngestSummary reports what happened to every chunk of a document.
// Total always equals Skipped + Stored + Failed.
type IngestSummary struct {
	DocumentID      string         `json:"document_id"`
	Filename        string         `json:"filename"`
	Total           int            `json:"total"`
	Skipped         int            `json:"skipped"`
	Stored          int            `json:"stored"`
	Failed          int            `json:"failed"`
	Failures        []ChunkFailure `json:"failures,omitempty"`
	DocumentSkipped bool           `json:"document_skipped"`
}

type PipelineOption func(*Pipeline)

func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline chunks, fingerprints, embeds and stores documents. Chunks whose
// fingerprint is already in the index are never embedded again.
type Pipeline struct {
	index    vectorstore.Index
	embedder embedding.Embedder
	chunker  chunker.Chunker
	opts     chunker.ChunkOptions
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewPipeline(index vectorstore.Index, embedder embedding.Embedder, opts chunker.ChunkOptions, options ...PipelineOption) *Pipeline {
	p := &Pipeline{
		index:    index,
		embedder: embedder,
		chunker:  chunker.New(),
		opts:     opts,
		now:      time.Now,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Ingest stores every new chunk of req.Text. Per-chunk failures are
// collected in the summary; the returned error is reserved for input that
// cannot be ingested at all.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestSummary, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: document %q has no text", ErrMalformedInput, req.Filename)
	}

	doc := Document{
		ID:         fingerprint.Document(req.Text),
		Filename:   req.Filename,
		Text:       req.Text,
		IngestedAt: p.now(),
	}
	docID := doc.ID
	summary := &IngestSummary{DocumentID: docID, Filename: doc.Filename}
	log := slog.With("document_id", docID, "filename", doc.Filename)

	chunks := ChunkDocument(p.chunker, docID, doc.Text, p.opts)
	summary.Total = len(chunks)

	seen, err := p.index.DocumentExists(ctx, docID)
	switch {
	case err != nil:
		log.Warn("document marker lookup failed, checking chunks", "error", err)
	case seen:
		summary.Skipped = len(chunks)
		summary.DocumentSkipped = true
		p.metrics.Document("duplicate")
		log.Info("document already ingested", "chunks", len(chunks))
		return summary, nil
	}

	inDocument := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if inDocument[c.Hash] {
			summary.Skipped++
			p.metrics.ChunkOutcome("skipped")
			continue
		}
		inDocument[c.Hash] = true

		stored, stage, err := p.ingestChunk(ctx, req.Filename, c)
		switch {
		case err != nil:
			summary.Failed++
			summary.Failures = append(summary.Failures, ChunkFailure{
				Ordinal: c.Ordinal,
				Hash:    c.Hash,
				Stage:   stage,
				Error:   err.Error(),
				Err:     err,
			})
			p.metrics.ChunkOutcome("failed")
			log.Warn("chunk ingestion failed", "ordinal", c.Ordinal, "stage", stage, "error", err)
		case stored:
			summary.Stored++
			p.metrics.ChunkOutcome("stored")
		default:
			summary.Skipped++
			p.metrics.ChunkOutcome("skipped")
		}

		if ctx.Err() != nil {
			break
		}
	}

	// Chunks never reached because the context ended count as failed.
	if processed := summary.Skipped + summary.Stored + summary.Failed; processed < summary.Total {
		for _, c := range chunks[processed:] {
			summary.Failed++
			summary.Failures = append(summary.Failures, ChunkFailure{
				Ordinal: c.Ordinal, Hash: c.Hash, Stage: StageExists, Error: ctx.Err().Error(), Err: ctx.Err(),
			})
		}
	}

	if summary.Failed == 0 {
		if err := p.index.MarkDocument(ctx, doc.marker(summary.Total)); err != nil {
			log.Warn("document marker write failed", "error", err)
		}
		p.metrics.Document("ingested")
	} else {
		p.metrics.Document("partial")
	}

	log.Info("document ingested",
		"total", summary.Total,
		"stored", summary.Stored,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (d Document) marker(chunks int) vectorstore.DocumentMarker {
	return vectorstore.DocumentMarker{
		DocumentID: d.ID,
		Filename:   d.Filename,
		Chunks:     chunks,
		IngestedAt: d.IngestedAt,
	}
}

// ingestChunk returns stored=false with a nil error when the chunk already
// exists. On error, stage names the step that failed.
func (p *Pipeline) ingestChunk(ctx context.Context, filename string, c Chunk) (bool, string, error) {
	exists, err := p.index.Exists(ctx, c.Hash)
	if err != nil {
		return false, StageExists, classify(err)
	}
	if exists {
		return false, "", nil
	}

	vec, err := p.embedder.Embed(ctx, c.Text)
	p.metrics.EmbedCall(err)
	if err != nil {
		return false, StageEmbed, classify(err)
	}

	err = p.index.Upsert(ctx, vectorstore.Record{
		ID:     c.Hash,
		Vector: vec,
		Payload: vectorstore.Payload{
			Text:       c.Text,
			DocumentID: c.DocumentID,
			Ordinal:    c.Ordinal,
			Filename:   filename,
		},
	})
	if err != nil {
		return false, StageUpsert, classify(err)
	}
	return true, "", nil
}

// FirstFailure returns the error of the first failed chunk, if any.
func (s *IngestSummary) FirstFailure() error {
	if s == nil || len(s.Failures) == 0 {
		return nil
	}
	if s.Failures[0].Err != nil {
		return s.Failures[0].Err
	}
	return errors.New(s.Failures[0].Error)
}
