package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	StrategySentence  = "sentence"
	StrategyRecursive = "recursive"
	StrategyFixed     = "fixed"

	DefaultChunkSize = 1500
)

type Chunker interface {
	Chunk(text string, opts ChunkOptions) []TextChunk
}

type ChunkOptions struct {
	ChunkSize    int    // upper bound in runes
	ChunkOverlap int    // runes carried over between neighbours
	Strategy     string // "sentence", "recursive", "fixed"
}

type TextChunk struct {
	Content string
	Index   int
}

func DefaultOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: 0,
		Strategy:     StrategySentence,
	}
}

type defaultChunker struct{}

func New() Chunker {
	return &defaultChunker{}
}

// Chunk splits text into ordered chunks of at most opts.ChunkSize runes.
// Output is deterministic for a given text and options and never contains
// blank chunks.
func (c *defaultChunker) Chunk(text string, opts ChunkOptions) []TextChunk {
	opts = normalize(opts)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if utf8.RuneCountInString(trimmed) <= opts.ChunkSize {
		return []TextChunk{{Content: trimmed, Index: 0}}
	}

	var parts []string
	switch opts.Strategy {
	case StrategyFixed:
		parts = chunkFixed(trimmed, opts)
	case StrategyRecursive:
		parts = chunkRecursive(trimmed, opts)
	default:
		parts = chunkBySentence(trimmed, opts)
	}

	chunks := make([]TextChunk, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, TextChunk{Content: p, Index: len(chunks)})
	}
	return chunks
}

func normalize(opts ChunkOptions) ChunkOptions {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 4
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategySentence
	}
	return opts
}

func chunkFixed(text string, opts ChunkOptions) []string {
	var parts []string
	runes := []rune(text)
	step := opts.ChunkSize - opts.ChunkOverlap
	if step <= 0 {
		step = opts.ChunkSize
	}

	for start := 0; start < len(runes); start += step {
		end := start + opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return parts
}

func chunkRecursive(text string, opts ChunkOptions) []string {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.ChunkSize),
		textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	segments, err := splitter.SplitText(text)
	if err != nil {
		// the splitter only fails on invalid options, which normalize rules out
		return chunkBySentence(text, opts)
	}

	var parts []string
	for _, seg := range segments {
		parts = append(parts, splitRunes(strings.TrimSpace(seg), opts.ChunkSize)...)
	}
	return parts
}

// chunkBySentence packs whole sentences into chunks. Sentences longer than
// the bound are cut on rune boundaries first.
func chunkBySentence(text string, opts ChunkOptions) []string {
	var pieces []string
	for _, s := range splitSentences(text) {
		pieces = append(pieces, splitRunes(s, opts.ChunkSize)...)
	}

	var parts []string
	var current []rune
	for _, piece := range pieces {
		pr := []rune(piece)
		if len(current) > 0 && len(current)+len(pr) > opts.ChunkSize {
			parts = append(parts, string(current))
			current = overlapTail(current, opts.ChunkOverlap, opts.ChunkSize-len(pr))
		}
		current = append(current, pr...)
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}

// overlapTail returns the last runes of prev to seed the next chunk, capped
// so the seed plus the incoming piece still fits the bound.
func overlapTail(prev []rune, overlap, room int) []rune {
	n := overlap
	if n > room {
		n = room
	}
	if n > len(prev) {
		n = len(prev)
	}
	if n <= 0 {
		return nil
	}
	tail := make([]rune, n)
	copy(tail, prev[len(prev)-n:])
	return tail
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	if len(runes) <= size {
		return []string{s}
	}
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
