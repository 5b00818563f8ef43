package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewCache(client, "docqa:test:")
	ctx := context.Background()

	t.Run("Should report missing keys", func(t *testing.T) {
		ok, err := c.Exists(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should namespace keys and honor ttl", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "abc", time.Minute))
		assert.True(t, mr.Exists("docqa:test:abc"))

		ok, err := c.Exists(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, ok)

		mr.FastForward(2 * time.Minute)
		ok, err = c.Exists(ctx, "abc")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should delete keys", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "gone", 0))
		require.NoError(t, c.Delete(ctx, "gone"))
		ok, err := c.Exists(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should ping", func(t *testing.T) {
		assert.NoError(t, c.Ping(ctx))
	})
}
