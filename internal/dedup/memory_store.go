package dedup

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

type memoryEntry struct {
	firstSeen time.Time
	count     atomic.Int64
}

// MemoryStore keeps fingerprints in process memory. A zero TTL keeps them for
// the life of the process.
type MemoryStore struct {
	items *cache.Cache
	ttl   time.Duration
}

// NewMemoryStore creates an empty in-memory store. With ttl > 0 expired
// fingerprints are swept every ttl/2.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		return &MemoryStore{items: cache.New(cache.NoExpiration, 0), ttl: cache.NoExpiration}
	}
	sweep := ttl / 2
	if sweep < time.Second {
		sweep = time.Second
	}
	return &MemoryStore{items: cache.New(ttl, sweep), ttl: ttl}
}

// Mark relies on cache.Add, which fails when the key is present, so the
// first caller for a fingerprint always wins.
func (s *MemoryStore) Mark(_ context.Context, fingerprint string) (bool, error) {
	for {
		e := &memoryEntry{firstSeen: time.Now()}
		e.count.Store(1)
		if err := s.items.Add(fingerprint, e, s.ttl); err == nil {
			return true, nil
		}
		if v, ok := s.items.Get(fingerprint); ok {
			v.(*memoryEntry).count.Add(1)
			return false, nil
		}
		// expired between Add and Get; try again
	}
}

func (s *MemoryStore) Lookup(_ context.Context, fingerprint string) (Seen, bool, error) {
	v, ok := s.items.Get(fingerprint)
	if !ok {
		return Seen{}, false, nil
	}
	e := v.(*memoryEntry)
	return Seen{FirstSeen: e.firstSeen, Count: e.count.Load()}, true, nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.items.Flush()
	return nil
}

// Size returns the number of fingerprints held (for tests and monitoring).
func (s *MemoryStore) Size() int {
	return s.items.ItemCount()
}

func (s *MemoryStore) Close() error { return nil }

var _ SeenStore = (*MemoryStore)(nil)
