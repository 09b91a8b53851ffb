package ratelimit

import "time"

// Global общий шлюз допуска: один bucket на весь процесс
type Global struct {
	bucket *Bucket
	clock  Clock
}

// NewGlobal создаёт глобальный bucket
func NewGlobal(capacity int, ratePerSecond float64, clock Clock) *Global {
	return &Global{
		bucket: NewBucket(capacity, ratePerSecond),
		clock:  clock,
	}
}

// Allow пытается взять токен из глобального bucket
func (g *Global) Allow() (bool, time.Duration) {
	return g.bucket.Allow(g.clock())
}

// Capacity вместимость глобального bucket
func (g *Global) Capacity() int {
	return g.bucket.Capacity()
}

// Tokens сколько токенов доступно прямо сейчас
func (g *Global) Tokens() float64 {
	return g.bucket.Tokens(g.clock())
}
