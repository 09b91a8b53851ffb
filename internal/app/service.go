package app

import (
	"context"

	"github.com/dessources/Go-rate-limited-url-shortener/internal/metrics"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/ratelimit"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/store"
)

// Links операции над ссылками (реализует store.URLStore)
type Links interface {
	Validate(raw string) error
	Shorten(ctx context.Context, originalURL string) (store.ShortLink, error)
	Resolve(ctx context.Context, code string) (string, error)
	Get(ctx context.Context, code string) (store.ShortLink, error)
	Ping(ctx context.Context) error
	Policy() store.Policy
}

// Admitter решения ограничителя (реализует ratelimit.Limiter)
type Admitter interface {
	Admit(identity string) ratelimit.Decision
	AdmitGlobal() ratelimit.Decision
}

// Identifier проверка API ключа (реализует auth.KeyRing)
type Identifier interface {
	Identify(apiKey string) (string, error)
}

// Snapshotter источник метрик (реализует metrics.Registry)
type Snapshotter interface {
	Snapshot() metrics.Snapshot
}

// Service зависимости диспетчера. Сам диспетчер состояния не хранит
type Service struct {
	Links   Links
	Limiter Admitter
	Auth    Identifier
	Metrics Snapshotter
}
