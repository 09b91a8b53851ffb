package ratelimit

import (
	"time"
	clk "time"
)

type Clock func() time.Time

type bucket struct {
	clock Clock
	last  time.Time
}

func newBucket() *bucket {
	return &bucket{clock: time.Now}
}

func (b *bucket) refill() time.Duration {
	now := b.clock()
	elapsed := now.Sub(b.last)
	b.last = now
	return elapsed
}

func (b *bucket) bad() {
	b.last = time.Now()            // want `time.Now reads the wall clock, use the injected Clock`
	_ = time.Since(b.last)         // want `time.Since reads the wall clock, use the injected Clock`
	_ = clk.Until(b.last)          // want `time.Until reads the wall clock, use the injected Clock`
	_ = time.Unix(0, 0).Add(time.Second)
}
