package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrDimensionMismatch is returned when a vector or an existing
	// collection disagrees with the configured embedding dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnavailable wraps network failures and 429/5xx answers from the index.
	ErrUnavailable = errors.New("vector index unavailable")
	// ErrInvalidRecord is returned for records that fail payload validation.
	ErrInvalidRecord = errors.New("invalid record")
)

const (
	MetricCosine = "cosine"
	MetricDot    = "dot"
	MetricEuclid = "euclid"
)

// Payload is the fixed set of fields stored next to every chunk vector.
type Payload struct {
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Filename   string `json:"filename,omitempty"`
}

func (p Payload) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Text) == "" {
		problems = append(problems, "text is empty")
	}
	if p.DocumentID == "" {
		problems = append(problems, "document_id is empty")
	}
	if p.Ordinal < 0 {
		problems = append(problems, "ordinal is negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, ", "))
	}
	return nil
}

// Record is one embedded chunk. ID is the chunk fingerprint.
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

func (r Record) Validate(dimension int) error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidRecord)
	}
	if len(r.Vector) != dimension {
		return fmt.Errorf("%w: record %s has %d, want %d", ErrDimensionMismatch, r.ID, len(r.Vector), dimension)
	}
	return r.Payload.Validate()
}

// Match is a search hit. Score grows with similarity for every metric.
type Match struct {
	ID      string
	Score   float64
	Payload Payload
}

type SearchOptions struct {
	TopK int
	// MinScore drops matches scoring below it. Zero or less disables it.
	MinScore float64
}

func (o SearchOptions) keep(score float64) bool {
	return o.MinScore <= 0 || score >= o.MinScore
}

// DocumentMarker records that every chunk of a document has been stored.
type DocumentMarker struct {
	DocumentID string
	Filename   string
	Chunks     int
	IngestedAt time.Time
}

// Index is the client contract of a vector collection.
type Index interface {
	EnsureCollection(ctx context.Context) error
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, rec Record) error
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]Match, error)
	DocumentExists(ctx context.Context, documentID string) (bool, error)
	MarkDocument(ctx context.Context, marker DocumentMarker) error
	Ping(ctx context.Context) error
}

const defaultTopK = 5

// NormalizeMetric accepts the usual aliases of the three supported metrics.
func NormalizeMetric(metric string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "", "cosine":
		return MetricCosine, nil
	case "dot", "dotproduct", "ip":
		return MetricDot, nil
	case "euclid", "euclidean", "l2":
		return MetricEuclid, nil
	default:
		return "", fmt.Errorf("unsupported vector metric %q", metric)
	}
}

// Similarity scores a against b under metric.
func Similarity(metric string, a, b []float32) float64 {
	switch metric {
	case MetricDot:
		return dot(a, b)
	case MetricEuclid:
		return distanceToScore(euclid(a, b))
	default:
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

// distanceToScore maps a Euclidean distance onto (0, 1].
func distanceToScore(d float64) float64 {
	return 1 / (1 + d)
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(a []float32) float64 {
	return math.Sqrt(dot(a, a))
}

func euclid(a, b []float32) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func topK(opts SearchOptions) int {
	if opts.TopK <= 0 {
		return defaultTopK
	}
	return opts.TopK
}
