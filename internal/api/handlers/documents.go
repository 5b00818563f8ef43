package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/queue"
	"github.com/nikhilbhutani/docqa/internal/rag"
)

type Uploader interface {
	Extract(ctx context.Context, req document.UploadRequest) (string, error)
	Upload(ctx context.Context, req document.UploadRequest) (*rag.IngestSummary, error)
}

type Enqueuer interface {
	EnqueueDocumentIngest(ctx context.Context, payload queue.DocumentIngestPayload) (string, error)
}

const maxMemory = 32 << 20

type DocumentHandler struct {
	docs  Uploader
	queue Enqueuer
}

// NewDocumentHandler builds the upload handler. q may be nil, in which case
// asynchronous uploads are refused.
func NewDocumentHandler(docs Uploader, q Enqueuer) *DocumentHandler {
	return &DocumentHandler{docs: docs, queue: q}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, document.DefaultMaxSize+(1<<20))
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file required"})
		return
	}
	defer file.Close()

	req := document.UploadRequest{
		Filename: header.Filename,
		FileType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Data:     file,
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueue(w, r, req)
		return
	}

	summary, err := h.docs.Upload(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch {
	case summary.DocumentSkipped:
		writeJSON(w, http.StatusOK, map[string]any{"message": "File already processed", "summary": summary})
	case summary.Failed > 0 && summary.Failed == summary.Total:
		cause := summary.FirstFailure()
		status := statusFor(cause)
		if status < http.StatusBadGateway && !errors.Is(cause, rag.ErrConfiguration) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]any{
			"error":   fmt.Sprintf("no chunks stored: %v", cause),
			"summary": summary,
		})
	case summary.Failed > 0:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": fmt.Sprintf("File partially processed: %d of %d chunks failed.", summary.Failed, summary.Total),
			"summary": summary,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"message": fmt.Sprintf("File processed and %d chunks stored.", summary.Stored),
			"summary": summary,
		})
	}
}

func (h *DocumentHandler) enqueue(w http.ResponseWriter, r *http.Request, req document.UploadRequest) {
	if h.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "asynchronous ingestion is not configured"})
		return
	}

	text, err := h.docs.Extract(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := h.queue.EnqueueDocumentIngest(r.Context(), queue.DocumentIngestPayload{Filename: req.Filename, Text: text})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "File queued for processing", "task_id": id})
}
