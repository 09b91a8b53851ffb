package ratelimit

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Bucket token bucket с ленивым пополнением.
// Токены пересчитываются при каждом обращении: min(capacity, tokens + elapsed*rate).
// Отказ токен не списывает. Синхронизация внутри rate.Limiter
type Bucket struct {
	lim      *rate.Limiter
	capacity int
	rate     float64
}

// NewBucket создаёт полный bucket
func NewBucket(capacity int, ratePerSecond float64) *Bucket {
	return &Bucket{
		lim:      rate.NewLimiter(rate.Limit(ratePerSecond), capacity),
		capacity: capacity,
		rate:     ratePerSecond,
	}
}

// Allow списывает один токен, если он есть.
// При отказе возвращает время до появления следующего токена
func (b *Bucket) Allow(now time.Time) (bool, time.Duration) {
	if b.lim.AllowN(now, 1) {
		return true, 0
	}
	return false, b.retryAfter(b.lim.TokensAt(now))
}

// Tokens текущее число токенов, без списания
func (b *Bucket) Tokens(now time.Time) float64 {
	t := b.lim.TokensAt(now)
	if t < 0 {
		return 0
	}
	return t
}

// Capacity вместимость bucket
func (b *Bucket) Capacity() int {
	return b.capacity
}

// Rate скорость пополнения, токенов в секунду
func (b *Bucket) Rate() float64 {
	return b.rate
}

func (b *Bucket) retryAfter(tokens float64) time.Duration {
	if b.rate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	missing := 1 - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / b.rate * float64(time.Second))
}
