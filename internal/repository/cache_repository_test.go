package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewCacheRepository(client, nil)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, mr
}

func TestCacheRepositorySetGet(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	type payload struct {
		Source string `json:"source"`
	}
	require.NoError(t, repo.Set(ctx, "availability:t1:2026-03-02", payload{Source: "template"}, time.Minute))

	var got payload
	require.NoError(t, repo.Get(ctx, "availability:t1:2026-03-02", &got))
	assert.Equal(t, "template", got.Source)

	mr.FastForward(2 * time.Minute)
	err := repo.Get(ctx, "availability:t1:2026-03-02", &got)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "availability:t1:2026-03-02", 1, 0))
	require.NoError(t, repo.Set(ctx, "availability:t1:2026-03-03", 1, 0))
	require.NoError(t, repo.Set(ctx, "availability:t2:2026-03-02", 1, 0))

	removed, err := repo.DeleteByPattern(ctx, "availability:t1:*")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.False(t, mr.Exists("availability:t1:2026-03-02"))
	assert.True(t, mr.Exists("availability:t2:2026-03-02"))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest int
	assert.ErrorIs(t, repo.Get(ctx, "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "k", 1, time.Minute))
	removed, err := repo.DeleteByPattern(ctx, "*")
	assert.NoError(t, err)
	assert.Zero(t, removed)
	assert.NoError(t, repo.Ping(ctx))
}
