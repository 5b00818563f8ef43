package document

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/pkg/textextract"
)

type TextExtractor interface {
	Extract(ctx context.Context, data io.ReaderAt, size int64, fileType string) (*textextract.ExtractedText, error)
	SupportedTypes() []string
}

type extractor struct{}

func NewTextExtractor() TextExtractor {
	return extractor{}
}

// Extract runs the format extractor. Unsupported types and undecodable
// content come back wrapped in rag.ErrMalformedInput.
func (extractor) Extract(ctx context.Context, data io.ReaderAt, size int64, fileType string) (*textextract.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := textextract.Extract(data, size, fileType)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, textextract.ErrUnsupportedType), errors.Is(err, textextract.ErrInvalidText):
		return nil, fmt.Errorf("%w: %w", rag.ErrMalformedInput, err)
	default:
		// The PDF and DOCX readers fail this way on corrupt files.
		return nil, fmt.Errorf("%w: extract text: %w", rag.ErrMalformedInput, err)
	}
}

func (extractor) SupportedTypes() []string {
	return textextract.SupportedTypes()
}
