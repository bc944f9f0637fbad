package storage

import (
	"context"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArxivDigest/internal/domain"
)

func openMemory(t *testing.T) *ListingCache {
	t.Helper()

	cache, err := OpenListingCache(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestListingCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := openMemory(t)

	day := time.Date(2025, time.October, 9, 0, 0, 0, 0, time.UTC)
	papers := []domain.Paper{{
		ID:          "2510.00001",
		Title:       "Cached",
		Authors:     []string{"Ada Lovelace"},
		Categories:  []string{"cs.LG"},
		PublishedAt: day,
	}}

	_, ok, err := cache.Get(ctx, "arxiv-list|cs.LG|7d", day)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, "arxiv-list|cs.LG|7d", day, papers))

	got, ok, err := cache.Get(ctx, "arxiv-list|cs.LG|7d", day)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "Cached", got[0].Title)
	assert.True(t, got[0].PublishedAt.Equal(day))

	_, ok, err = cache.Get(ctx, "arxiv-list|cs.LG|7d", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, ok, "a new day misses")
}

func TestListingCachePutReplaces(t *testing.T) {
	ctx := context.Background()
	cache := openMemory(t)

	day := time.Date(2025, time.October, 9, 0, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Put(ctx, "k", day, []domain.Paper{{ID: "old"}}))
	require.NoError(t, cache.Put(ctx, "k", day.AddDate(0, 0, 1), []domain.Paper{{ID: "new"}}))

	got, ok, err := cache.Get(ctx, "k", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", got[0].ID)

	removed, err := cache.Prune(ctx, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestResolveDSN(t *testing.T) {
	t.Parallel()

	driver, source, format := resolveDSN("postgres://user@localhost/digest?sslmode=disable")
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "postgres://user@localhost/digest?sslmode=disable", source)
	assert.Equal(t, sq.Dollar, format)

	driver, source, format = resolveDSN("sqlite:///var/cache/digest.db")
	assert.Equal(t, "sqlite", driver)
	assert.Equal(t, "/var/cache/digest.db", source)
	assert.Equal(t, sq.Question, format)
}

func TestNilCacheIsNoop(t *testing.T) {
	t.Parallel()

	var cache *ListingCache
	_, ok, err := cache.Get(context.Background(), "k", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, cache.Put(context.Background(), "k", time.Now(), nil))
}
