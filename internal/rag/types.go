package rag

import "time"

// Document is an uploaded text. ID is the fingerprint of the full text, so
// identical uploads share it.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Text       string    `json:"-"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is one retrievable passage of a document.
type Chunk struct {
	Text       string `json:"text"`
	Hash       string `json:"hash"`
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	TokenCount int    `json:"token_count"`
}

// ScoredChunk is a chunk returned by retrieval with its similarity score.
type ScoredChunk struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Hash       string  `json:"hash"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename,omitempty"`
	Ordinal    int     `json:"ordinal"`
}

// RetrievalResult holds chunks in descending score order.
type RetrievalResult struct {
	Question string        `json:"question"`
	Chunks   []ScoredChunk `json:"chunks"`
}

func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Chunks) == 0
}

// Texts returns the chunk texts in ranking order.
func (r *RetrievalResult) Texts() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = c.Text
	}
	return out
}
