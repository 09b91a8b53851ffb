// Package store хранит короткие ссылки: валидация, выпуск уникального кода,
// разрешение кода в оригинальную ссылку со счётчиком переходов.
// Хранение делегируется Repository (память, PostgreSQL или Redis).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dessources/Go-rate-limited-url-shortener/internal/codegen"
)

// Recorder получает события хранилища для метрик
type Recorder interface {
	LinkStored()
	LinkResolved()
	SetLinksStored(n int64)
}

type noopRecorder struct{}

func (noopRecorder) LinkStored()          {}
func (noopRecorder) LinkResolved()        {}
func (noopRecorder) SetLinksStored(int64) {}

// URLStore сервис коротких ссылок поверх Repository
type URLStore struct {
	repo     Repository
	gen      codegen.Generator
	policy   Policy
	recorder Recorder
	now      func() time.Time
	attempts int
}

// Option настройка URLStore
type Option func(*URLStore)

// WithRecorder подключает метрики
func WithRecorder(r Recorder) Option {
	return func(s *URLStore) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithPolicy задаёт правила валидации
func WithPolicy(p Policy) Option {
	return func(s *URLStore) {
		s.policy = p
	}
}

// WithClock подменяет часы для CreatedAt
func WithClock(now func() time.Time) Option {
	return func(s *URLStore) {
		s.now = now
	}
}

// New собирает URLStore
func New(repo Repository, gen codegen.Generator, opts ...Option) *URLStore {
	s := &URLStore{
		repo:     repo,
		gen:      gen,
		policy:   DefaultPolicy(),
		recorder: noopRecorder{},
		now:      time.Now,
		attempts: codegen.MaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy текущие правила валидации
func (s *URLStore) Policy() Policy {
	return s.policy
}

// Validate проверяет ссылку, ничего не записывая
func (s *URLStore) Validate(raw string) error {
	return s.policy.Validate(raw)
}

// Shorten сохраняет ссылку под новым кодом.
// Всего выпускается не более codegen.MaxAttempts кодов, если все заняты, ErrCodeSpaceExhausted.
// Сохраняется ссылка без пробелов по краям
func (s *URLStore) Shorten(ctx context.Context, rawURL string) (ShortLink, error) {
	originalURL, err := s.policy.Normalize(rawURL)
	if err != nil {
		return ShortLink{}, err
	}

	for attempt := 0; attempt < s.attempts; attempt++ {
		code, err := s.gen.Generate()
		if err != nil {
			return ShortLink{}, fmt.Errorf("generate code: %w", err)
		}

		link := ShortLink{
			Code:        code,
			OriginalURL: originalURL,
			CreatedAt:   s.now().UTC(),
		}

		inserted, err := s.repo.InsertIfAbsent(ctx, link)
		if err != nil {
			return ShortLink{}, fmt.Errorf("store link: %w", err)
		}
		if inserted {
			s.recorder.LinkStored()
			return link, nil
		}
	}

	return ShortLink{}, fmt.Errorf("%w: %d collisions in a row", ErrCodeSpaceExhausted, s.attempts)
}

// Resolve возвращает оригинальную ссылку и увеличивает счётчик переходов.
// Для неизвестного кода ErrLinkNotFound, хранилище не меняется
func (s *URLStore) Resolve(ctx context.Context, code string) (string, error) {
	if !codegen.IsValid(code) {
		return "", ErrLinkNotFound
	}

	originalURL, err := s.repo.IncrementHits(ctx, code)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return "", ErrLinkNotFound
		}
		return "", fmt.Errorf("resolve %s: %w", code, err)
	}

	s.recorder.LinkResolved()
	return originalURL, nil
}

// Get читает ссылку без учёта перехода
func (s *URLStore) Get(ctx context.Context, code string) (ShortLink, error) {
	if !codegen.IsValid(code) {
		return ShortLink{}, ErrLinkNotFound
	}
	return s.repo.Get(ctx, code)
}

// Count количество сохранённых ссылок
func (s *URLStore) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// SeedMetrics выставляет счётчик ссылок по содержимому бэкенда (нужно после рестарта с postgres/redis)
func (s *URLStore) SeedMetrics(ctx context.Context) error {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("seed metrics: %w", err)
	}
	s.recorder.SetLinksStored(n)
	return nil
}

// Ping проверяет доступность бэкенда
func (s *URLStore) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close освобождает бэкенд
func (s *URLStore) Close() error {
	return s.repo.Close()
}
