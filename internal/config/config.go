package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

type Config struct {
	Server      ServerConfig
	VectorStore VectorStoreConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	LLM         LLMConfig
	Embedding   EmbeddingConfig
	RAG         RAGConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

type VectorStoreConfig struct {
	Backend      string // "qdrant", "pgvector" or "memory"
	Metric       string // "cosine", "dot" or "euclid"
	Dimension    int
	QdrantURL    string
	QdrantAPIKey string
	Collection   string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	ExistsCacheTTL time.Duration
}

type LLMConfig struct {
	OpenAIKey        string
	OpenAIBaseURL    string
	HFKey            string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	CacheSize int
}

type RAGConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	ChunkStrategy string
	TopK          int
	MaxTopK       int
	MinScore      float64
	Rerank        bool
	ContextTokens int
	PromptTokens  int
	MaxTokens     int
	Temperature   float64
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	geti := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, key)
		}
		return v
	}
	getf := func(key string, fallback float64) float64 {
		v, err := getEnvFloat(key, fallback)
		if err != nil {
			errs = append(errs, key)
		}
		return v
	}
	getd := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, key)
		}
		return v
	}
	getb := func(key string, fallback bool) bool {
		v, err := getEnvBool(key, fallback)
		if err != nil {
			errs = append(errs, key)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           geti("SERVER_PORT", 8080),
			RequestTimeout: getd("REQUEST_TIMEOUT", 60*time.Second),
			RateLimitRPS:   getf("RATE_LIMIT_RPS", 10),
			RateLimitBurst: geti("RATE_LIMIT_BURST", 20),
		},
		VectorStore: VectorStoreConfig{
			Backend:      getEnv("VECTOR_STORE", "qdrant"),
			Metric:       getEnv("VECTOR_METRIC", "cosine"),
			Dimension:    geti("VECTOR_DIMENSION", 768),
			QdrantURL:    getEnv("QDRANT_URL", "http://localhost:6333"),
			QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),
			Collection:   getEnv("QDRANT_COLLECTION", "rag_documents"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: geti("DB_MAX_CONNS", 20),
			MinConns: geti("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             geti("REDIS_DB", 0),
			ExistsCacheTTL: getd("EXISTS_CACHE_TTL", 24*time.Hour),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			HFKey:            getEnv("HF_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "huggingface"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "mistralai/Mistral-7B-Instruct-v0.2:featherless-ai"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       geti("LLM_MAX_RETRIES", 3),
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", "ollama"),
			Model:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			CacheSize: geti("EMBEDDING_CACHE_SIZE", 1024),
		},
		RAG: RAGConfig{
			ChunkSize:     geti("CHUNK_SIZE", 1500),
			ChunkOverlap:  geti("CHUNK_OVERLAP", 0),
			ChunkStrategy: getEnv("CHUNK_STRATEGY", "sentence"),
			TopK:          geti("RETRIEVAL_TOP_K", 3),
			MaxTopK:       geti("RETRIEVAL_MAX_TOP_K", 20),
			MinScore:      getf("RETRIEVAL_MIN_SCORE", 0),
			Rerank:        getb("RETRIEVAL_RERANK", false),
			ContextTokens: geti("CONTEXT_TOKENS", 3000),
			PromptTokens:  geti("PROMPT_TOKENS", 4096),
			MaxTokens:     geti("GENERATION_MAX_TOKENS", 512),
			Temperature:   getf("GENERATION_TEMPERATURE", 0.7),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid env vars: %s", strings.Join(errs, ", "))
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var missing, invalid []string

	switch c.VectorStore.Backend {
	case "qdrant":
		if c.VectorStore.QdrantURL == "" {
			missing = append(missing, "QDRANT_URL")
		}
		if c.VectorStore.Collection == "" {
			missing = append(missing, "QDRANT_COLLECTION")
		}
	case "pgvector":
		if c.Database.URL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case "memory":
	default:
		invalid = append(invalid, "VECTOR_STORE")
	}

	if _, err := vectorstore.NormalizeMetric(c.VectorStore.Metric); err != nil {
		invalid = append(invalid, "VECTOR_METRIC")
	}
	if c.VectorStore.Dimension <= 0 {
		invalid = append(invalid, "VECTOR_DIMENSION")
	}

	for _, provider := range []string{c.LLM.DefaultProvider, c.Embedding.Provider, c.LLM.FallbackProvider} {
		if key := c.LLM.missingKey(provider); key != "" {
			missing = append(missing, key)
		}
	}
	if c.Embedding.Model == "" {
		missing = append(missing, "EMBEDDING_MODEL")
	}
	if c.LLM.DefaultModel == "" {
		missing = append(missing, "LLM_DEFAULT_MODEL")
	}

	if c.RAG.ChunkSize <= 0 {
		invalid = append(invalid, "CHUNK_SIZE")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		invalid = append(invalid, "CHUNK_OVERLAP")
	}
	switch c.RAG.ChunkStrategy {
	case "sentence", "recursive", "fixed":
	default:
		invalid = append(invalid, "CHUNK_STRATEGY")
	}
	if c.RAG.TopK <= 0 {
		invalid = append(invalid, "RETRIEVAL_TOP_K")
	}
	if c.RAG.MaxTopK < c.RAG.TopK {
		invalid = append(invalid, "RETRIEVAL_MAX_TOP_K")
	}
	if c.RAG.ContextTokens <= 0 {
		invalid = append(invalid, "CONTEXT_TOKENS")
	}
	if c.RAG.PromptTokens <= c.RAG.ContextTokens {
		invalid = append(invalid, "PROMPT_TOKENS")
	}
	if c.Server.RequestTimeout <= 0 {
		invalid = append(invalid, "REQUEST_TIMEOUT")
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required env vars: "+strings.Join(dedupe(missing), ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid env vars: "+strings.Join(invalid, ", "))
	}
	if len(parts) > 0 {
		return fmt.Errorf("%s", strings.Join(parts, "; "))
	}
	return nil
}

// missingKey names the credential env var a provider needs but lacks.
func (c LLMConfig) missingKey(provider string) string {
	switch provider {
	case "openai":
		if c.OpenAIKey == "" {
			return "OPENAI_API_KEY"
		}
	case "huggingface":
		if c.HFKey == "" {
			return "HF_API_KEY"
		}
	case "anthropic":
		if c.AnthropicKey == "" {
			return "ANTHROPIC_API_KEY"
		}
	case "ollama":
		if c.OllamaURL == "" {
			return "OLLAMA_URL"
		}
	}
	return ""
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
