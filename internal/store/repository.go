package store

import (
	"context"
	"time"
)

// ShortLink сохранённая короткая ссылка. После записи меняется только HitCount
type ShortLink struct {
	Code        string
	OriginalURL string
	CreatedAt   time.Time
	HitCount    int64
}

// Repository бэкенд хранения ссылок (memory, postgres, redis).
// Каждая операция атомарна относительно конкурентных вызовов с тем же кодом
type Repository interface {
	// InsertIfAbsent записывает ссылку, если код свободен. false означает коллизию
	InsertIfAbsent(ctx context.Context, link ShortLink) (bool, error)
	// IncrementHits увеличивает счётчик переходов и возвращает оригинальную ссылку
	IncrementHits(ctx context.Context, code string) (string, error)
	// Get читает ссылку без изменения счётчика
	Get(ctx context.Context, code string) (ShortLink, error)
	// Count количество сохранённых ссылок
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
