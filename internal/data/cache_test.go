package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"RateLane/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (CacheClient, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCacheClient(rdb), mr
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	entry := model.HistoryEntry{
		Provider:  "bcv",
		Day:       "2025-01-15",
		Values:    map[string]float64{"usd": 189.5, "eur": 221.25},
		Source:    "BCV",
		Timestamp: time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC),
	}
	key := BuildCacheKey(CacheKeyLatest, "bcv")
	require.NoError(t, cache.Set(ctx, key, entry, time.Hour))

	var got model.HistoryEntry
	require.NoError(t, cache.Get(ctx, key, &got))
	assert.Equal(t, entry.Values, got.Values)
	assert.True(t, entry.Timestamp.Equal(got.Timestamp))

	ttl := mr.TTL(key)
	assert.Equal(t, time.Hour, ttl)
}

func TestCache_GetMissingKey(t *testing.T) {
	cache, _ := setupTestCache(t)

	var dest map[string]any
	err := cache.Get(context.Background(), "rate:latest:nope", &dest)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCache_GetInvalidJSON(t *testing.T) {
	cache, mr := setupTestCache(t)
	require.NoError(t, mr.Set("rate:latest:bcv", "{not json"))

	var dest model.HistoryEntry
	err := cache.Get(context.Background(), "rate:latest:bcv", &dest)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheNotFound))
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestCache_TTLExpiration(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", 1, time.Minute))
	mr.FastForward(2 * time.Minute)

	var dest int
	assert.ErrorIs(t, cache.Get(ctx, "k", &dest), ErrCacheNotFound)
}

func TestCache_Delete(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", 0))
	assert.True(t, mr.Exists("k"))

	require.NoError(t, cache.Delete(ctx, "k"))
	require.NoError(t, cache.Delete(ctx, "k"), "deleting a missing key is not an error")
	assert.False(t, mr.Exists("k"))
}

func TestCache_RedisDown(t *testing.T) {
	cache, mr := setupTestCache(t)
	mr.Close()

	err := cache.Set(context.Background(), "k", "v", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set key k")
}

func TestCache_NilRedisClient(t *testing.T) {
	cache := NewCacheClient(nil)
	ctx := context.Background()

	var dest string
	assert.ErrorIs(t, cache.Get(ctx, "k", &dest), errNoRedis)
	assert.ErrorIs(t, cache.Set(ctx, "k", "v", time.Minute), errNoRedis)
	assert.ErrorIs(t, cache.Delete(ctx, "k"), errNoRedis)
}

func TestBuildCacheKey(t *testing.T) {
	tests := []struct {
		prefix string
		parts  []string
		want   string
	}{
		{CacheKeyLatest, []string{"bcv"}, "rate:latest:bcv"},
		{CacheKeyLatest, []string{"p2p", "usd"}, "rate:latest:p2p:usd"},
		{"solo", nil, "solo"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildCacheKey(tt.prefix, tt.parts...))
		})
	}
}
