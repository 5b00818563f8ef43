package document

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/pkg/textextract"
)

// DefaultMaxSize bounds uploaded files.
const DefaultMaxSize = 32 << 20

// Ingester stores extracted document text.
type Ingester interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestSummary, error)
}

type Service struct {
	ingester  Ingester
	extractor TextExtractor
	maxSize   int64
}

func NewService(ing Ingester) *Service {
	return &Service{
		ingester:  ing,
		extractor: NewTextExtractor(),
		maxSize:   DefaultMaxSize,
	}
}

type UploadRequest struct {
	Filename string
	// FileType is an extension or MIME type; the filename's extension is
	// used when it is empty or unknown.
	FileType string
	Size     int64
	Data     io.ReaderAt
}

func (r UploadRequest) resolvedType() string {
	if t := textextract.NormalizeType(r.FileType); t != "" {
		return t
	}
	return textextract.TypeFromFilename(r.Filename)
}

// Extract validates the upload and returns its plain text.
func (s *Service) Extract(ctx context.Context, req UploadRequest) (string, error) {
	fileType := req.resolvedType()
	if fileType == "" {
		return "", fmt.Errorf("%w: only %s files are supported", rag.ErrMalformedInput, strings.Join(s.extractor.SupportedTypes(), ", "))
	}
	if req.Size <= 0 {
		return "", fmt.Errorf("%w: %s is empty", rag.ErrMalformedInput, req.Filename)
	}
	if req.Size > s.maxSize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", rag.ErrMalformedInput, req.Filename, s.maxSize)
	}

	extracted, err := s.extractor.Extract(ctx, req.Data, req.Size, fileType)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(extracted.Content) == "" {
		return "", fmt.Errorf("%w: no text found in %s", rag.ErrMalformedInput, req.Filename)
	}
	slog.Debug("text extracted", "filename", req.Filename, "type", fileType, "pages", extracted.Pages)
	return extracted.Content, nil
}

// Upload extracts the text of a file and ingests it.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*rag.IngestSummary, error) {
	text, err := s.Extract(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.ingester.Ingest(ctx, rag.IngestRequest{Filename: req.Filename, Text: text})
}
