package inventory

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
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheVersionInitialises(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)

	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)
}

func TestCacheFetchJSONPopulatesOnce(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "inventory", "all")
	require.NoError(t, err)

	loads := 0
	loader := func(ctx context.Context) (any, error) {
		loads++
		return []Record{{ID: 1, SKU: "SKU1", StoreID: "StoreA", Quantity: 10, Version: 1}}, nil
	}

	var first []Record
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.Len(t, first, 1)
	require.Equal(t, 1, loads)

	var second []Record
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, first, second)
	require.Equal(t, 1, loads)
}

func TestCacheBumpChangesKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "inventory", "all")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "inventory", "all")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestServiceReadsThroughCache(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 10)
	cache := newTestCache(t)
	svc := NewService(repo, nil, nil, cache, nil)
	ctx := context.Background()

	records, err := svc.GetAllInventory(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, repo.listCalls)

	// Cached snapshot serves the second read.
	records, err = svc.GetAllInventory(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, repo.listCalls)

	// A committed movement bumps the version and forces a fresh read.
	_, err = svc.RecordMovement(ctx, MovementInput{SKU: "SKU1", StoreID: "StoreA", Type: "sale", Quantity: 4})
	require.NoError(t, err)

	records, err = svc.GetAllInventory(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 6, records[0].Quantity)
	require.Equal(t, 2, repo.listCalls)
}
