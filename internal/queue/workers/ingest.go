package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/docqa/internal/queue"
	"github.com/nikhilbhutani/docqa/internal/rag"
)

type Ingester interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestSummary, error)
}

type IngestWorker struct {
	ingester Ingester
}

func NewIngestWorker(ing Ingester) *IngestWorker {
	return &IngestWorker{ingester: ing}
}

// ProcessTask ingests one document. A summary with failed chunks is
// returned as an error so asynq retries the task; chunks stored on an
// earlier attempt are skipped on the next one.
func (w *IngestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	slog.Info("processing document", "filename", payload.Filename)

	summary, err := w.ingester.Ingest(ctx, rag.IngestRequest{Filename: payload.Filename, Text: payload.Text})
	if errors.Is(err, rag.ErrMalformedInput) {
		return fmt.Errorf("ingest %s: %w: %w", payload.Filename, err, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("ingest %s: %w", payload.Filename, err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("ingest %s: %d of %d chunks failed: %w", payload.Filename, summary.Failed, summary.Total, summary.FirstFailure())
	}

	slog.Info("document processed",
		"document_id", summary.DocumentID,
		"stored", summary.Stored,
		"skipped", summary.Skipped,
	)
	return nil
}
