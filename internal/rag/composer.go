package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/metrics"
	"github.com/nikhilbhutani/docqa/pkg/tokenizer"
)

const (
	ModeContext = "context"
	ModeGeneral = "general"

	// NoContextMessage stands in for the context when retrieval found nothing.
	NoContextMessage = "No relevant context found."

	DefaultSystemPrompt = `You are a helpful assistant answering questions using the provided context.
If the answer is not contained in the context, say: 'I don't know.'
Do not make up information. Be concise and clear.`

	GeneralSystemPrompt = `You are a helpful assistant. No document context is available for this question.
Answer from general knowledge, say so when you are unsure, and be concise and clear.`
)

// ComposerOptions configures a Composer. ContextTokens caps the retrieved
// context; PromptTokens caps the whole prompt including history and question.
type ComposerOptions struct {
	Provider      string
	Model         string
	MaxTokens     int
	Temperature   float64
	ContextTokens int
	PromptTokens  int
	SystemPrompt  string
	CountTokens   tokenizer.Counter
	Metrics       *metrics.Metrics
}

// Composer turns a retrieval result into a bounded prompt and asks the
// generation model for an answer.
type Composer struct {
	gateway llm.Gateway
	opts    ComposerOptions
}

func NewComposer(gw llm.Gateway, opts ComposerOptions) *Composer {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.CountTokens == nil {
		opts.CountTokens = tokenizer.CountTokens
	}
	if opts.ContextTokens <= 0 {
		opts.ContextTokens = 3000
	}
	if opts.PromptTokens <= 0 {
		opts.PromptTokens = opts.ContextTokens + 1024
	}
	return &Composer{gateway: gw, opts: opts}
}

type AnswerRequest struct {
	Question string
	Result   *RetrievalResult
	// History holds earlier turns of the conversation, oldest first. The
	// oldest turns are dropped when the prompt would exceed its budget.
	History []llm.Message
}

type Answer struct {
	Text    string        `json:"answer"`
	Mode    string        `json:"mode"`
	Context []string      `json:"context"`
	Sources []ScoredChunk `json:"sources"`
	Model   string        `json:"model,omitempty"`
	Tokens  int           `json:"tokens,omitempty"`
}

func (c *Composer) Answer(ctx context.Context, req AnswerRequest) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrMalformedInput)
	}

	answer := &Answer{Mode: ModeContext}
	system := c.opts.SystemPrompt
	if req.Result.Empty() {
		answer.Mode = ModeGeneral
		system = GeneralSystemPrompt
	}

	user := question
	if answer.Mode == ModeContext {
		user = contextPrompt("", question)
	}
	available := c.opts.PromptTokens - c.opts.CountTokens(system) - c.opts.CountTokens(user)
	if available < 0 {
		return nil, fmt.Errorf("%w: question does not fit the %d token prompt", ErrMalformedInput, c.opts.PromptTokens)
	}

	if answer.Mode == ModeContext {
		contextStr, used, spent := c.buildContext(req.Result.Chunks, min(c.opts.ContextTokens, available))
		answer.Sources = used
		for _, s := range used {
			answer.Context = append(answer.Context, s.Text)
		}
		user = contextPrompt(contextStr, question)
		available -= spent
	}

	messages := []llm.Message{{Role: "system", Content: system}}
	messages = append(messages, c.fitHistory(req.History, available)...)
	messages = append(messages, llm.Message{Role: "user", Content: user})

	start := time.Now()
	resp, err := c.gateway.Chat(ctx, llm.ChatRequest{
		Provider:    c.opts.Provider,
		Model:       c.opts.Model,
		Messages:    messages,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	c.opts.Metrics.ObserveGeneration(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, classify(err))
	}

	answer.Text = strings.TrimSpace(resp.Content)
	if answer.Text == "" {
		return nil, fmt.Errorf("%w: model %s returned an empty answer", ErrGeneration, resp.Model)
	}
	answer.Model = resp.Model
	answer.Tokens = resp.TotalTokens
	return answer, nil
}

func contextPrompt(contextStr, question string) string {
	return fmt.Sprintf("Context:\n%s\nQuestion: %s", contextStr, question)
}

// fitHistory keeps the newest turns whose tokens fit budget, oldest first.
func (c *Composer) fitHistory(history []llm.Message, budget int) []llm.Message {
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := c.opts.CountTokens(history[i].Content)
		if cost > budget {
			break
		}
		budget -= cost
		start = i
	}
	return history[start:]
}

// buildContext adds chunks in ranking order while budget allows and reports
// the tokens spent. The first chunk that does not fit is cut down to the
// remaining budget and ends the context.
func (c *Composer) buildContext(chunks []ScoredChunk, budget int) (string, []ScoredChunk, int) {
	var (
		sb        strings.Builder
		used      []ScoredChunk
		remaining = budget
	)
	for i, ch := range chunks {
		header := fmt.Sprintf("[Source %d] (score: %.3f)\n", i+1, ch.Score)
		block := header + ch.Text + "\n\n"
		cost := c.opts.CountTokens(block)
		if cost <= remaining {
			sb.WriteString(block)
			used = append(used, ch)
			remaining -= cost
			continue
		}

		room := remaining - c.opts.CountTokens(header+"\n\n")
		if room > 0 {
			if cut := truncateToTokens(ch.Text, room, c.opts.CountTokens); cut != "" {
				block = header + cut + "\n\n"
				sb.WriteString(block)
				ch.Text = cut
				used = append(used, ch)
				remaining -= c.opts.CountTokens(block)
			}
		}
		break
	}
	return sb.String(), used, budget - remaining
}

// truncateToTokens returns the longest rune prefix of text whose token count
// does not exceed budget.
func truncateToTokens(text string, budget int, count tokenizer.Counter) string {
	if count(text) <= budget {
		return text
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if count(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.TrimSpace(string(runes[:lo]))
}
