// Package testutil provides testing utilities for the semantic cache.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/finsight/semcache/pkg/cache"
)

// MemoryStore is an in-memory cache.Store for tests that need a durable
// mirror without a Redis daemon.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]map[string]*cache.Entry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]map[string]*cache.Entry)}
}

// Put stores a copy of the entry under its namespace.
func (s *MemoryStore) Put(_ context.Context, namespace string, entry *cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[namespace] == nil {
		s.entries[namespace] = make(map[string]*cache.Entry)
	}
	copied := *entry
	s.entries[namespace][entry.CanonicalKey] = &copied
	return nil
}

// Get returns the stored entry or cache.ErrCacheMiss.
func (s *MemoryStore) Get(_ context.Context, namespace, canonicalKey string) (*cache.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[namespace][canonicalKey]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	copied := *e
	return &copied, nil
}

// Delete removes the entry if present. Absent keys are not an error.
func (s *MemoryStore) Delete(_ context.Context, namespace, canonicalKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[namespace], canonicalKey)
	return nil
}

// List returns all entries in a namespace.
func (s *MemoryStore) List(_ context.Context, namespace string) ([]*cache.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*cache.Entry, 0, len(s.entries[namespace]))
	for _, e := range s.entries[namespace] {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

// Len reports the number of entries stored under a namespace.
func (s *MemoryStore) Len(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[namespace])
}

// ManualClock is a cache.Clock that advances only when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a clock at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
