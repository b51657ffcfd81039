package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
)

type memoryCacheRepo struct {
	data   map[string][]byte
	getErr error
	ttls   map[string]time.Duration
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (r *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.data[key] = raw
	r.ttls[key] = ttl
	return nil
}

func (r *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(r.data, key)
	}
	return nil
}

func TestCacheServiceRoundTripAndMetrics(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, 0, nil, true)
	ctx := context.Background()

	var out []string
	hit, err := svc.Get(ctx, "jobs:u", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "jobs:u", []string{"a"}, 0))
	assert.Equal(t, 5*time.Minute, repo.ttls["jobs:u"])

	hit, err = svc.Get(ctx, "jobs:u", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a"}, out)

	require.NoError(t, svc.Delete(ctx, "jobs:u"))
	hit, _ = svc.Get(ctx, "jobs:u", &out)
	assert.False(t, hit)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(2), snap.CacheMisses)
}

func TestCacheServiceDeleteIsExactKey(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()

	for _, key := range []string{"jobs:user-1", "jobs:user-10", "jobs:user-1*"} {
		require.NoError(t, svc.Set(ctx, key, []string{key}, 0))
	}
	require.NoError(t, svc.Delete(ctx, "jobs:user-1"))

	assert.NotContains(t, repo.data, "jobs:user-1")
	assert.Contains(t, repo.data, "jobs:user-10")
	assert.Contains(t, repo.data, "jobs:user-1*")
	assert.NoError(t, svc.Delete(ctx))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.Empty(t, repo.data)
	hit, err := svc.Get(context.Background(), "k", new(int))
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceBackendError(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("redis down")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	hit, err := svc.Get(context.Background(), "k", new(int))
	assert.Error(t, err)
	assert.False(t, hit)
}
