package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/docqa/internal/llm"
)

type ModelsHandler struct {
	gateway    llm.Gateway
	generation string
	embedding  string
}

func NewModelsHandler(gw llm.Gateway, generationModel, embeddingModel string) *ModelsHandler {
	return &ModelsHandler{gateway: gw, generation: generationModel, embedding: embeddingModel}
}

// Models lists the models the configured providers offer next to the ones
// this deployment uses.
func (h *ModelsHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"generation_model": h.generation,
		"embedding_model":  h.embedding,
		"models":           h.gateway.ListModels(),
	})
}
