package vectorstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/docqa/internal/cache"
)

// CachedIndex remembers positive existence answers in Redis so repeated
// ingestion skips the round trip to the index. A cache miss or cache error
// always defers to the index, and a negative answer is never cached.
type CachedIndex struct {
	Index
	cache *cache.Cache
	ttl   time.Duration
}

func NewCachedIndex(next Index, c *cache.Cache, ttl time.Duration) *CachedIndex {
	return &CachedIndex{Index: next, cache: c, ttl: ttl}
}

func chunkKey(id string) string    { return "chunk:" + id }
func documentKey(id string) string { return "doc:" + id }

func (c *CachedIndex) Exists(ctx context.Context, id string) (bool, error) {
	return c.lookup(ctx, chunkKey(id), func() (bool, error) {
		return c.Index.Exists(ctx, id)
	})
}

func (c *CachedIndex) DocumentExists(ctx context.Context, documentID string) (bool, error) {
	return c.lookup(ctx, documentKey(documentID), func() (bool, error) {
		return c.Index.DocumentExists(ctx, documentID)
	})
}

func (c *CachedIndex) Upsert(ctx context.Context, rec Record) error {
	if err := c.Index.Upsert(ctx, rec); err != nil {
		return err
	}
	c.remember(ctx, chunkKey(rec.ID))
	return nil
}

func (c *CachedIndex) MarkDocument(ctx context.Context, marker DocumentMarker) error {
	if err := c.Index.MarkDocument(ctx, marker); err != nil {
		return err
	}
	c.remember(ctx, documentKey(marker.DocumentID))
	return nil
}

func (c *CachedIndex) lookup(ctx context.Context, key string, fallback func() (bool, error)) (bool, error) {
	hit, err := c.cache.Exists(ctx, key)
	if err != nil {
		slog.Debug("exists cache unavailable", "key", key, "error", err)
	} else if hit {
		return true, nil
	}

	ok, err := fallback()
	if err != nil {
		return false, err
	}
	if ok {
		c.remember(ctx, key)
	}
	return ok, nil
}

func (c *CachedIndex) remember(ctx context.Context, key string) {
	if err := c.cache.Set(ctx, key, c.ttl); err != nil {
		slog.Debug("exists cache write failed", "key", key, "error", err)
	}
}
