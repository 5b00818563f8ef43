package rag

import (
	"github.com/nikhilbhutani/docqa/internal/fingerprint"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
	"github.com/nikhilbhutani/docqa/pkg/tokenizer"
)

// ChunkDocument splits text into fingerprinted chunks owned by documentID.
func ChunkDocument(c chunker.Chunker, documentID, text string, opts chunker.ChunkOptions) []Chunk {
	pieces := c.Chunk(text, opts)

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{
			Text:       p.Content,
			Hash:       fingerprint.Of(p.Content),
			DocumentID: documentID,
			Ordinal:    p.Index,
			TokenCount: tokenizer.Estimate(p.Content),
		}
	}
	return chunks
}
