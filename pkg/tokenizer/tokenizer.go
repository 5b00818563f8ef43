package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// Counter reports the number of tokens in a piece of text.
type Counter func(text string) int

// CountTokens returns the cl100k_base token count of text. When the BPE
// ranks cannot be loaded it falls back to Estimate.
func CountTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding(defaultEncoding)
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return Estimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// Estimate is a rough word-based count: about 4 tokens per 3 words.
func Estimate(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return max(len(words)*4/3, 1)
}
