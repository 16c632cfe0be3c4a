package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/docshare-api/internal/repository"
)

func TestCacheServiceRoundTripWithLRU(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(repository.NewLRUCacheRepository(16, time.Minute), metrics, time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var dest map[string]string
	hit, err := svc.Get(ctx, "missing", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "k", map[string]string{"a": "b"}, 0))
	hit, err = svc.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "b", dest["a"])

	require.NoError(t, svc.Invalidate(ctx, "k"))
	hit, err = svc.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(2), snapshot.CacheMisses)
}

func TestCacheServiceDisabled(t *testing.T) {
	svc := NewCacheService(repository.NewLRUCacheRepository(16, time.Minute), nil, time.Minute, nil, false)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "k", "v", 0))
	var dest string
	hit, err := svc.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
}
