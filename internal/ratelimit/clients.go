package ratelimit

import (
	"context"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"
)

const clientShards = 64

type clientEntry struct {
	bucket   *Bucket
	lastSeen atomic.Int64 // unix nano
}

type clientShard struct {
	mu      sync.RWMutex
	entries map[string]*clientEntry
}

// Clients bucket на каждого клиента. Bucket создаётся при первом запросе клиента
// и удаляется, если клиент молчит дольше idleTTL
type Clients struct {
	seed     maphash.Seed
	shards   [clientShards]*clientShard
	capacity int
	rate     float64
	idleTTL  time.Duration
	clock    Clock
	recorder Recorder
}

func newClients(capacity int, ratePerSecond float64, idleTTL time.Duration, clock Clock, recorder Recorder) *Clients {
	c := &Clients{
		seed:     maphash.MakeSeed(),
		capacity: capacity,
		rate:     ratePerSecond,
		idleTTL:  idleTTL,
		clock:    clock,
		recorder: recorder,
	}
	for i := range c.shards {
		c.shards[i] = &clientShard{entries: make(map[string]*clientEntry)}
	}
	return c
}

func (c *Clients) shard(id string) *clientShard {
	return c.shards[maphash.String(c.seed, id)%clientShards]
}

// entry находит или создаёт bucket клиента и отмечает активность.
// Пока держится блокировка шарда, уборщик не может удалить запись
func (c *Clients) entry(id string, now time.Time) *clientEntry {
	s := c.shard(id)

	s.mu.RLock()
	e, ok := s.entries[id]
	if ok {
		e.lastSeen.Store(now.UnixNano())
	}
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok = s.entries[id]; ok {
		e.lastSeen.Store(now.UnixNano())
		return e
	}

	e = &clientEntry{bucket: NewBucket(c.capacity, c.rate)}
	e.lastSeen.Store(now.UnixNano())
	s.entries[id] = e
	c.recorder.ClientAdded()
	return e
}

// Allow пытается взять токен из bucket клиента
func (c *Clients) Allow(id string) (bool, time.Duration) {
	now := c.clock()
	return c.entry(id, now).bucket.Allow(now)
}

// Tokens токены клиента без создания записи. false, если bucket ещё нет
func (c *Clients) Tokens(id string) (float64, bool) {
	s := c.shard(id)

	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return e.bucket.Tokens(c.clock()), true
}

// Len количество клиентов с живым bucket
func (c *Clients) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Evict удаляет bucket клиентов, не обращавшихся дольше idleTTL. Возвращает число удалённых
func (c *Clients) Evict() int {
	if c.idleTTL <= 0 {
		return 0
	}
	deadline := c.clock().Add(-c.idleTTL).UnixNano()
	removed := 0

	for _, s := range c.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			if e.lastSeen.Load() < deadline {
				delete(s.entries, id)
				removed++
				c.recorder.ClientEvicted()
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Run запускает уборщика, работает до отмены ctx
func (c *Clients) Run(ctx context.Context, every time.Duration, onEvict func(n int)) {
	if every <= 0 || c.idleTTL <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Evict(); n > 0 && onEvict != nil {
				onEvict(n)
			}
		}
	}
}
