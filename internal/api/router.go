package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/docqa/internal/api/handlers"
	"github.com/nikhilbhutani/docqa/internal/api/middleware"
	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/llm"
)

// Deps are the collaborators the routes call into. Queue and Gateway may be
// nil; the routes that need them are then refused or left out.
type Deps struct {
	Documents handlers.Uploader
	Asker     handlers.Asker
	Queue     handlers.Enqueuer
	Gateway   llm.Gateway
	Checks    map[string]handlers.Pinger
	Metrics   http.Handler
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
	rl   *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
		rl:   middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}
}

// RateLimiter exposes the limiter so the caller can run its cleanup loop.
func (rt *Router) RateLimiter() *middleware.RateLimiter {
	return rt.rl
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Health and metrics stay outside the rate limit.
	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(rt.rl.Limit)
		r.Use(chimiddleware.Timeout(rt.requestTimeout()))

		docH := handlers.NewDocumentHandler(rt.deps.Documents, rt.deps.Queue)
		r.Post("/upload", docH.Upload)

		askH := handlers.NewAskHandler(rt.deps.Asker)
		r.Post("/ask", askH.Ask)

		if rt.deps.Gateway != nil {
			modelsH := handlers.NewModelsHandler(rt.deps.Gateway, rt.cfg.LLM.DefaultModel, rt.cfg.Embedding.Model)
			r.Get("/models", modelsH.Models)
		}
	})

	return r
}

func (rt *Router) requestTimeout() time.Duration {
	if rt.cfg.Server.RequestTimeout > 0 {
		return rt.cfg.Server.RequestTimeout
	}
	return 60 * time.Second
}
