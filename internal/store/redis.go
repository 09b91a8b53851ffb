package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "shortener"

// Ссылка лежит в хеше {url, created, hits}; счётчик ссылок в отдельном ключе
var redisInsertScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "url", ARGV[1], "created", ARGV[2], "hits", 0)
redis.call("INCR", KEYS[2])
return 1
`)

var redisResolveScript = redis.NewScript(`
local url = redis.call("HGET", KEYS[1], "url")
if not url then
  return false
end
redis.call("HINCRBY", KEYS[1], "hits", 1)
return url
`)

// RedisRepository хранит ссылки в Redis
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository оборачивает готовый клиент. Пустой prefix заменяется на "shortener"
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisRepository{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisRepository) linkKey(code string) string {
	return r.prefix + ":link:" + code
}

func (r *RedisRepository) countKey() string {
	return r.prefix + ":count"
}

// InsertIfAbsent см. Repository
func (r *RedisRepository) InsertIfAbsent(ctx context.Context, link ShortLink) (bool, error) {
	res, err := redisInsertScript.Run(ctx, r.client,
		[]string{r.linkKey(link.Code), r.countKey()},
		link.OriginalURL, link.CreatedAt.UnixNano(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis insert: %w", err)
	}
	return res == 1, nil
}

// IncrementHits см. Repository
func (r *RedisRepository) IncrementHits(ctx context.Context, code string) (string, error) {
	originalURL, err := redisResolveScript.Run(ctx, r.client, []string{r.linkKey(code)}).Text()
	if errors.Is(err, redis.Nil) {
		return "", ErrLinkNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis resolve: %w", err)
	}
	return originalURL, nil
}

// Get см. Repository
func (r *RedisRepository) Get(ctx context.Context, code string) (ShortLink, error) {
	fields, err := r.client.HGetAll(ctx, r.linkKey(code)).Result()
	if err != nil {
		return ShortLink{}, fmt.Errorf("redis get: %w", err)
	}
	if len(fields) == 0 {
		return ShortLink{}, ErrLinkNotFound
	}

	created, err := strconv.ParseInt(fields["created"], 10, 64)
	if err != nil {
		return ShortLink{}, fmt.Errorf("redis get: bad created_at: %w", err)
	}
	hits, err := strconv.ParseInt(fields["hits"], 10, 64)
	if err != nil {
		return ShortLink{}, fmt.Errorf("redis get: bad hit count: %w", err)
	}

	return ShortLink{
		Code:        code,
		OriginalURL: fields["url"],
		CreatedAt:   time.Unix(0, created).UTC(),
		HitCount:    hits,
	}, nil
}

// Count см. Repository
func (r *RedisRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, r.countKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis count: %w", err)
	}
	return n, nil
}

// Ping проверяет соединение с Redis
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает клиент
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
