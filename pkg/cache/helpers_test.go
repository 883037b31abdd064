package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store with failure injection for unit tests.
type memStore struct {
	mu      sync.Mutex
	entries map[string]map[string]*Entry

	failPuts bool
	failList bool
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]map[string]*Entry)}
}

var errStoreDown = errors.New("store unavailable")

func (s *memStore) Put(_ context.Context, namespace string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPuts {
		return errStoreDown
	}
	if s.entries[namespace] == nil {
		s.entries[namespace] = make(map[string]*Entry)
	}
	s.entries[namespace][entry.CanonicalKey] = entry.clone()
	return nil
}

func (s *memStore) Get(_ context.Context, namespace, canonicalKey string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[namespace][canonicalKey]
	if !ok {
		return nil, ErrCacheMiss
	}
	return e.clone(), nil
}

func (s *memStore) Delete(_ context.Context, namespace, canonicalKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[namespace], canonicalKey)
	return nil
}

func (s *memStore) List(_ context.Context, namespace string) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errStoreDown
	}
	out := make([]*Entry, 0, len(s.entries[namespace]))
	for _, e := range s.entries[namespace] {
		out = append(out, e.clone())
	}
	return out, nil
}

func (s *memStore) has(namespace, canonicalKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[namespace][canonicalKey]
	return ok
}

// manualClock advances only when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testConfig returns a manager config on a fresh memory store and
// manual clock.
func testConfig(store Store, clock Clock) Config {
	cfg := DefaultConfig(store)
	cfg.Clock = clock
	return cfg
}

// testCache builds a standalone query-domain instance for engine tests.
func testCache(t *testing.T, maxSize int, store Store, clock Clock) *Cache {
	t.Helper()
	cfg := testConfig(store, clock)
	cfg.MaxSize = maxSize
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	c, err := m.Cache(DomainQuery)
	if err != nil {
		t.Fatalf("Cache(query) failed: %v", err)
	}
	return c
}
