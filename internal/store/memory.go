package store

import (
	"context"
	"hash/maphash"
	"sync"
	"sync/atomic"
)

const memoryShards = 64

type memoryEntry struct {
	link ShortLink
	hits atomic.Int64
}

type memoryShard struct {
	mu    sync.RWMutex
	links map[string]*memoryEntry
}

// MemoryRepository хранит ссылки в памяти процесса, разбитой на шарды по коду
type MemoryRepository struct {
	seed   maphash.Seed
	shards [memoryShards]*memoryShard
	count  atomic.Int64
}

// NewMemoryRepository создаёт пустое хранилище в памяти
func NewMemoryRepository() *MemoryRepository {
	m := &MemoryRepository{seed: maphash.MakeSeed()}
	for i := range m.shards {
		m.shards[i] = &memoryShard{links: make(map[string]*memoryEntry)}
	}
	return m
}

func (m *MemoryRepository) shard(code string) *memoryShard {
	return m.shards[maphash.String(m.seed, code)%memoryShards]
}

// InsertIfAbsent см. Repository
func (m *MemoryRepository) InsertIfAbsent(_ context.Context, link ShortLink) (bool, error) {
	s := m.shard(link.Code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.Code]; exists {
		return false, nil
	}

	e := &memoryEntry{link: link}
	e.hits.Store(link.HitCount)
	s.links[link.Code] = e
	m.count.Add(1)
	return true, nil
}

// IncrementHits см. Repository
func (m *MemoryRepository) IncrementHits(_ context.Context, code string) (string, error) {
	s := m.shard(code)

	s.mu.RLock()
	e, ok := s.links[code]
	s.mu.RUnlock()
	if !ok {
		return "", ErrLinkNotFound
	}

	e.hits.Add(1)
	return e.link.OriginalURL, nil
}

// Get см. Repository
func (m *MemoryRepository) Get(_ context.Context, code string) (ShortLink, error) {
	s := m.shard(code)

	s.mu.RLock()
	e, ok := s.links[code]
	s.mu.RUnlock()
	if !ok {
		return ShortLink{}, ErrLinkNotFound
	}

	link := e.link
	link.HitCount = e.hits.Load()
	return link, nil
}

// Count см. Repository
func (m *MemoryRepository) Count(context.Context) (int64, error) {
	return m.count.Load(), nil
}

// Ping память всегда доступна
func (m *MemoryRepository) Ping(context.Context) error {
	return nil
}

// Close ничего не освобождает
func (m *MemoryRepository) Close() error {
	return nil
}
