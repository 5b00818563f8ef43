package handlers

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/rag"
)

type Asker interface {
	Ask(ctx context.Context, req rag.AskRequest) (*rag.Answer, error)
}

type AskHandler struct {
	asker Asker
}

func NewAskHandler(a Asker) *AskHandler {
	return &AskHandler{asker: a}
}

type askRequest struct {
	Question string        `json:"question"`
	TopK     int           `json:"top_k"`
	History  []llm.Message `json:"history"`
}

type askResponse struct {
	Answer  string            `json:"answer"`
	Mode    string            `json:"mode"`
	Context []string          `json:"context"`
	Sources []rag.ScoredChunk `json:"sources"`
}

// Ask accepts the question as a JSON body or as a form field.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}

	ans, err := h.asker.Ask(r.Context(), rag.AskRequest{
		Question: req.Question,
		TopK:     req.TopK,
		History:  req.History,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := askResponse{
		Answer:  ans.Text,
		Mode:    ans.Mode,
		Context: ans.Context,
		Sources: ans.Sources,
	}
	if len(resp.Context) == 0 {
		resp.Context = []string{rag.NoContextMessage}
	}
	if resp.Sources == nil {
		resp.Sources = []rag.ScoredChunk{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return req, false
		}
	} else {
		req.Question = r.FormValue("question")
		if v := r.FormValue("top_k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top_k must be an integer"})
				return req, false
			}
			req.TopK = n
		}
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question required"})
		return req, false
	}
	if req.TopK < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top_k must not be negative"})
		return req, false
	}
	return req, true
}
