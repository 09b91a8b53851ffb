package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgres(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("skip: TEST_DATABASE_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := NewPostgresRepository(ctx, dsn)
	if err != nil {
		t.Skipf("skip: cannot connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func setupRedis(t *testing.T) *RedisRepository {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skip: TEST_REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("skip: cannot connect to redis at %s: %v", addr, err)
	}

	// отдельный префикс на каждый прогон, чтобы не зависеть от чужих данных
	repo := NewRedisRepository(client, "shortener-test-"+uuid.NewString())
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), repo.prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		_ = repo.Close()
	})
	return repo
}

// exerciseRepository общий сценарий для внешних бэкендов
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	code := "t" + uuid.NewString()[:7]

	before, err := repo.Count(ctx)
	require.NoError(t, err)

	link := ShortLink{Code: code, OriginalURL: "https://example.com/x", CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	ok, err := repo.InsertIfAbsent(ctx, link)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.InsertIfAbsent(ctx, ShortLink{Code: code, OriginalURL: "https://other.example.com", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.IncrementHits(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, link.OriginalURL, got)

	stored, err := repo.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, link.OriginalURL, stored.OriginalURL)
	assert.EqualValues(t, 1, stored.HitCount)
	assert.WithinDuration(t, link.CreatedAt, stored.CreatedAt, time.Millisecond)

	_, err = repo.IncrementHits(ctx, "missing-"+code)
	assert.ErrorIs(t, err, ErrLinkNotFound)
	_, err = repo.Get(ctx, "missing-"+code)
	assert.ErrorIs(t, err, ErrLinkNotFound)

	after, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	assert.NoError(t, repo.Ping(ctx))
}

func TestPostgresRepository(t *testing.T) {
	exerciseRepository(t, setupPostgres(t))
}

func TestRedisRepository(t *testing.T) {
	exerciseRepository(t, setupRedis(t))
}
