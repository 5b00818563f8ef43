package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	kindChunk    = "chunk"
	kindDocument = "document"

	qdrantDefaultTimeout = 15 * time.Second
)

// pointNamespace seeds the UUIDv5 point ids derived from fingerprints.
var pointNamespace = uuid.MustParse("3f1c9a52-7d0e-4b8a-9e61-2a5c4d7b8f10")

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Metric     string
	Timeout    time.Duration
}

// QdrantStore speaks the Qdrant REST API. Qdrant point ids must be integers
// or UUIDs, so fingerprints are mapped to UUIDv5 ids and kept in the payload.
type QdrantStore struct {
	client     *resty.Client
	collection string
	dimension  int
	metric     string
}

type qdrantPayload struct {
	Payload
	Fingerprint string `json:"fingerprint"`
	Kind        string `json:"kind"`
	Chunks      int    `json:"chunks,omitempty"`
	IngestedAt  string `json:"ingested_at,omitempty"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantScored struct {
	ID      any           `json:"id"`
	Score   float64       `json:"score"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", cfg.Dimension)
	}
	metric, err := NormalizeMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = qdrantDefaultTimeout
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		metric:     metric,
	}, nil
}

// PointID maps a fingerprint onto the UUID used as the Qdrant point id.
func PointID(fingerprint string) string {
	return uuid.NewSHA1(pointNamespace, []byte(fingerprint)).String()
}

func documentPointID(documentID string) string {
	return PointID(kindDocument + ":" + documentID)
}

func qdrantDistance(metric string) string {
	switch metric {
	case MetricDot:
		return "Dot"
	case MetricEuclid:
		return "Euclid"
	default:
		return "Cosine"
	}
}

func (q *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + q.collection + suffix
}

// EnsureCollection creates the collection when missing and otherwise checks
// that its vector size and distance match the configuration.
func (q *QdrantStore) EnsureCollection(ctx context.Context) error {
	var info qdrantCollectionInfo
	status, err := q.do(ctx, http.MethodGet, q.collectionPath(""), nil, &info, http.StatusNotFound)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", q.collection, err)
	}

	if status == http.StatusNotFound {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     q.dimension,
				"distance": qdrantDistance(q.metric),
			},
		}
		if _, err := q.do(ctx, http.MethodPut, q.collectionPath(""), body, nil); err != nil {
			return fmt.Errorf("create collection %s: %w", q.collection, err)
		}
		index := map[string]any{"field_name": "kind", "field_schema": "keyword"}
		if _, err := q.do(ctx, http.MethodPut, q.collectionPath("/index?wait=true"), index, nil); err != nil {
			return fmt.Errorf("create payload index: %w", err)
		}
		return nil
	}

	vectors := info.Result.Config.Params.Vectors
	if vectors.Size != q.dimension {
		return fmt.Errorf("%w: collection %s has size %d, embedder produces %d",
			ErrDimensionMismatch, q.collection, vectors.Size, q.dimension)
	}
	if want := qdrantDistance(q.metric); vectors.Distance != "" && !strings.EqualFold(vectors.Distance, want) {
		return fmt.Errorf("collection %s uses %s distance, configured %s", q.collection, vectors.Distance, want)
	}
	return nil
}

func (q *QdrantStore) Exists(ctx context.Context, id string) (bool, error) {
	return q.pointExists(ctx, PointID(id))
}

func (q *QdrantStore) DocumentExists(ctx context.Context, documentID string) (bool, error) {
	return q.pointExists(ctx, documentPointID(documentID))
}

func (q *QdrantStore) pointExists(ctx context.Context, pointID string) (bool, error) {
	body := map[string]any{
		"ids":          []string{pointID},
		"with_payload": false,
		"with_vector":  false,
	}
	var resp struct {
		Result []struct {
			ID any `json:"id"`
		} `json:"result"`
	}
	if _, err := q.do(ctx, http.MethodPost, q.collectionPath("/points"), body, &resp); err != nil {
		return false, fmt.Errorf("retrieve point: %w", err)
	}
	return len(resp.Result) > 0, nil
}

func (q *QdrantStore) Upsert(ctx context.Context, rec Record) error {
	if err := rec.Validate(q.dimension); err != nil {
		return err
	}
	point := qdrantPoint{
		ID:     PointID(rec.ID),
		Vector: rec.Vector,
		Payload: qdrantPayload{
			Payload:     rec.Payload,
			Fingerprint: rec.ID,
			Kind:        kindChunk,
		},
	}
	return q.putPoints(ctx, point)
}

// MarkDocument stores the marker as a point of kind "document". Its vector
// is a unit basis vector, and chunk searches filter it out by kind.
func (q *QdrantStore) MarkDocument(ctx context.Context, marker DocumentMarker) error {
	if marker.DocumentID == "" {
		return fmt.Errorf("%w: document_id is empty", ErrInvalidRecord)
	}
	vec := make([]float32, q.dimension)
	vec[0] = 1
	point := qdrantPoint{
		ID:     documentPointID(marker.DocumentID),
		Vector: vec,
		Payload: qdrantPayload{
			Payload:     Payload{DocumentID: marker.DocumentID, Filename: marker.Filename},
			Fingerprint: marker.DocumentID,
			Kind:        kindDocument,
			Chunks:      marker.Chunks,
			IngestedAt:  marker.IngestedAt.UTC().Format(time.RFC3339),
		},
	}
	return q.putPoints(ctx, point)
}

func (q *QdrantStore) putPoints(ctx context.Context, points ...qdrantPoint) error {
	body := map[string]any{"points": points}
	if _, err := q.do(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

func (q *QdrantStore) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]Match, error) {
	if len(vector) != q.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), q.dimension)
	}
	request := map[string]any{
		"vector":       vector,
		"limit":        topK(opts),
		"with_payload": true,
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": "kind", "match": map[string]any{"value": kindChunk}},
			},
		},
	}
	var resp struct {
		Result []qdrantScored `json:"result"`
	}
	if _, err := q.do(ctx, http.MethodPost, q.collectionPath("/points/search"), request, &resp); err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		score := r.Score
		if q.metric == MetricEuclid {
			score = distanceToScore(r.Score)
		}
		if !opts.keep(score) {
			continue
		}
		id := r.Payload.Fingerprint
		if id == "" {
			id = fmt.Sprint(r.ID)
		}
		matches = append(matches, Match{ID: id, Score: score, Payload: r.Payload.Payload})
	}
	return matches, nil
}

func (q *QdrantStore) Ping(ctx context.Context) error {
	if _, err := q.do(ctx, http.MethodGet, q.collectionPath(""), nil, nil); err != nil {
		return fmt.Errorf("ping qdrant: %w", err)
	}
	return nil
}

// do sends a JSON request. Statuses listed in allow are returned without
// error so callers can branch on them.
func (q *QdrantStore) do(ctx context.Context, method, path string, body, out any, allow ...int) (int, error) {
	req := q.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	status := resp.StatusCode()
	for _, s := range allow {
		if status == s {
			return status, nil
		}
	}
	if resp.IsError() {
		err := fmt.Errorf("qdrant %s %s: status %d: %s", method, path, status, strings.TrimSpace(resp.String()))
		if status == http.StatusTooManyRequests || status >= 500 {
			return status, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return status, err
	}
	return status, nil
}
