package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type cachedOrder struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
}

func newTestCache(t *testing.T) *JSONCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewJSONCache(client, "orders", time.Minute)
}

func TestFetchJSONPopulatesAndReuses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "detail", "42")
	require.NoError(t, err)

	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return cachedOrder{ID: 42, Number: "PO-20250314001"}, nil
	}

	var first cachedOrder
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, "PO-20250314001", first.Number)

	var second cachedOrder
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, first, second)
	require.Equal(t, 1, loads)
}

func TestInvalidateBumpsVersion(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	before, err := c.BuildKey(ctx, "detail", "42")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	after, err := c.BuildKey(ctx, "detail", "42")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestNilClientFallsThrough(t *testing.T) {
	var c *JSONCache
	var out cachedOrder
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return cachedOrder{ID: 7}, nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 7, out.ID)
}
