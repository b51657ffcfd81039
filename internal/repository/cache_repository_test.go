package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "jobs", nil)
	ctx := context.Background()

	var dest []string
	assert.ErrorIs(t, repo.Get(ctx, "user-1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "user-1", []string{"a"}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "user-1"))
	assert.NoError(t, repo.Delete(ctx))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryKeyNamespace(t *testing.T) {
	assert.Equal(t, "jobs:user-1", NewCacheRepository(nil, "jobs", nil).key("user-1"))
	assert.Equal(t, "user-1", NewCacheRepository(nil, "", nil).key("user-1"))
}
