// Package ratelimit двухуровневый ограничитель частоты запросов.
//
// Сначала запрос проходит глобальный bucket (общая пропускная способность сервиса),
// затем bucket конкретного клиента. Отказ на глобальном уровне состояние клиента не трогает.
// Все решения принимаются за O(1), без ожиданий и циклов.
//
// Время берётся только из внедрённых часов (Clock), прямые вызовы time.Now в пакете запрещены линтером.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Ошибки отказа. Decision.Err возвращает одну из них
var (
	ErrGlobalRateLimited = errors.New("global rate limit exceeded")
	ErrClientRateLimited = errors.New("client rate limit exceeded")
)

// Clock источник текущего времени
type Clock func() time.Time

// Tier уровень, на котором принято решение
type Tier int

// Уровни ограничителя
const (
	TierNone Tier = iota
	TierGlobal
	TierClient
)

func (t Tier) String() string {
	switch t {
	case TierGlobal:
		return "global"
	case TierClient:
		return "client"
	default:
		return "none"
	}
}

// Decision результат проверки. При отказе Tier указывает, какой bucket отказал,
// RetryAfter через сколько в нём появится токен
type Decision struct {
	Allowed    bool
	Tier       Tier
	RetryAfter time.Duration
}

// Err ошибка отказа или nil, если запрос допущен
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Tier {
	case TierGlobal:
		return ErrGlobalRateLimited
	case TierClient:
		return ErrClientRateLimited
	default:
		return fmt.Errorf("rate limited at unknown tier %d", d.Tier)
	}
}

// Recorder получает события ограничителя для метрик
type Recorder interface {
	Admitted()
	GlobalRejected()
	ClientRejected()
	ClientAdded()
	ClientEvicted()
}

// NoopRecorder ничего не записывает
type NoopRecorder struct{}

func (NoopRecorder) Admitted()       {}
func (NoopRecorder) GlobalRejected() {}
func (NoopRecorder) ClientRejected() {}
func (NoopRecorder) ClientAdded()    {}
func (NoopRecorder) ClientEvicted()  {}

// Config параметры обоих уровней
type Config struct {
	GlobalCapacity int
	GlobalRate     float64
	ClientCapacity int
	ClientRate     float64
	ClientIdleTTL  time.Duration
	EvictEvery     time.Duration
}

// Validate проверяет, что вместимости и скорости положительны
func (c Config) Validate() error {
	switch {
	case c.GlobalCapacity <= 0:
		return fmt.Errorf("global capacity must be positive, got %d", c.GlobalCapacity)
	case !validRate(c.GlobalRate):
		return fmt.Errorf("global rate must be positive, got %g", c.GlobalRate)
	case c.ClientCapacity <= 0:
		return fmt.Errorf("client capacity must be positive, got %d", c.ClientCapacity)
	case !validRate(c.ClientRate):
		return fmt.Errorf("client rate must be positive, got %g", c.ClientRate)
	}
	return nil
}

// validRate конечная положительная скорость, NaN и Inf отклоняются
func validRate(r float64) bool {
	return r > 0 && !math.IsInf(r, 0)
}

// Option настройка Limiter
type Option func(*Limiter)

// WithClock подменяет часы (в тестах)
func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithRecorder подключает метрики
func WithRecorder(r Recorder) Option {
	return func(l *Limiter) {
		if r != nil {
			l.recorder = r
		}
	}
}

// Limiter глобальный шлюз и клиентские bucket'ы вместе
type Limiter struct {
	cfg      Config
	clock    Clock
	recorder Recorder
	global   *Global
	clients  *Clients
}

// New собирает Limiter. Ошибка, если конфиг не проходит Validate
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:      cfg,
		clock:    time.Now,
		recorder: NoopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}

	l.global = NewGlobal(cfg.GlobalCapacity, cfg.GlobalRate, l.clock)
	l.clients = newClients(cfg.ClientCapacity, cfg.ClientRate, cfg.ClientIdleTTL, l.clock, l.recorder)
	return l, nil
}

// Admit проверяет запрос клиента: сначала глобальный bucket, потом клиентский
func (l *Limiter) Admit(identity string) Decision {
	if ok, wait := l.global.Allow(); !ok {
		l.recorder.GlobalRejected()
		return Decision{Tier: TierGlobal, RetryAfter: wait}
	}

	if ok, wait := l.clients.Allow(identity); !ok {
		l.recorder.ClientRejected()
		return Decision{Tier: TierClient, RetryAfter: wait}
	}

	l.recorder.Admitted()
	return Decision{Allowed: true}
}

// AdmitGlobal проверка только глобального bucket, для запросов без идентичности клиента
func (l *Limiter) AdmitGlobal() Decision {
	if ok, wait := l.global.Allow(); !ok {
		l.recorder.GlobalRejected()
		return Decision{Tier: TierGlobal, RetryAfter: wait}
	}
	l.recorder.Admitted()
	return Decision{Allowed: true}
}

// Global глобальный bucket (для метрик)
func (l *Limiter) Global() *Global {
	return l.global
}

// Clients клиентские bucket'ы
func (l *Limiter) Clients() *Clients {
	return l.clients
}

// Run фоновая уборка простаивающих клиентов до отмены ctx
func (l *Limiter) Run(ctx context.Context, onEvict func(n int)) {
	l.clients.Run(ctx, l.cfg.EvictEvery, onEvict)
}
