package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestFetchJSONPopulatesAndReuses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return map[string]int{"count": 7}, nil
	}

	key, err := c.BuildKey(ctx, "inventory", "dashboard", "p1")
	require.NoError(t, err)

	var first map[string]int
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, 7, first["count"])

	var second map[string]int
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 7, second["count"])
	require.Equal(t, 1, loads)
}

func TestBumpChangesKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	before, err := c.BuildKey(ctx, "inventory", "low-stock")
	require.NoError(t, err)

	require.NoError(t, c.Bump(ctx))

	after, err := c.BuildKey(ctx, "inventory", "low-stock")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestNilCacheFallsThroughToLoader(t *testing.T) {
	var c *Cache
	var out map[string]string
	err := c.FetchJSON(context.Background(), "any", &out, func(context.Context) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", out["status"])
}
