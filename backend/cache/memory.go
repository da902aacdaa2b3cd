package cache

import (
	"context"
	"sync"
	"time"

	"evalsurvey/backend/models"
)

type memoryEntry struct {
	tree    []models.Domain
	expires time.Time
}

// MemoryStore is the in-process Store used when no Redis is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	gen     uint64
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Generation(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen, nil
}

func (s *MemoryStore) Get(_ context.Context, gen uint64, key string) ([]models.Domain, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || gen != s.gen || s.now().After(e.expires) {
		return nil, false, nil
	}
	return e.tree, true, nil
}

func (s *MemoryStore) Set(_ context.Context, gen uint64, key string, tree []models.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	s.entries[key] = memoryEntry{tree: tree, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.gen++
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}
