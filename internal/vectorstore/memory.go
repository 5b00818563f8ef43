package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a brute-force in-process index for tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	metric    string
	order     []string
	records   map[string]Record
	documents map[string]DocumentMarker
}

func NewMemoryStore(dimension int, metric string) (*MemoryStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	m, err := NormalizeMetric(metric)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		dimension: dimension,
		metric:    m,
		records:   make(map[string]Record),
		documents: make(map[string]DocumentMarker),
	}, nil
}

func (s *MemoryStore) EnsureCollection(context.Context) error { return nil }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) error {
	if err := rec.Validate(s.dimension); err != nil {
		return err
	}
	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	rec.Vector = vec

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, opts SearchOptions) ([]Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	s.mu.RLock()
	matches := make([]Match, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		score := Similarity(s.metric, vector, rec.Vector)
		if !opts.keep(score) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: score, Payload: rec.Payload})
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k := topK(opts); len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *MemoryStore) DocumentExists(_ context.Context, documentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.documents[documentID]
	return ok, nil
}

func (s *MemoryStore) MarkDocument(_ context.Context, marker DocumentMarker) error {
	if marker.DocumentID == "" {
		return fmt.Errorf("%w: document_id is empty", ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[marker.DocumentID] = marker
	return nil
}

// Len returns the number of stored chunk records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
