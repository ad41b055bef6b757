// Package memory implements an in-process response cache with per-entry
// expiry and least-recently-used eviction.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

type entry struct {
	resp         proxy.CachedResponse
	lastAccessed time.Time
}

// Store is a concurrency-safe proxy.ResponseCache.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	maxEntries int
	now        func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store holding at most maxEntries responses (0 = unlimited).
func New(maxEntries int, opts ...Option) *Store {
	s := &Store{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a fresh entry for key. Expired entries are dropped.
func (s *Store) Get(_ context.Context, key string) (proxy.CachedResponse, bool, error) {
	now := s.now()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return proxy.CachedResponse{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check; the entry may have been replaced between locks.
	e, ok = s.entries[key]
	if !ok {
		return proxy.CachedResponse{}, false, nil
	}
	if e.resp.Expired(now) {
		delete(s.entries, key)
		return proxy.CachedResponse{}, false, nil
	}
	e.lastAccessed = now
	return e.resp, true, nil
}

// Put stores resp under key, evicting the least recently used entry when full.
func (s *Store) Put(_ context.Context, key string, resp proxy.CachedResponse) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.removeExpired(now)
		if len(s.entries) >= s.maxEntries {
			s.evictLRU()
		}
	}
	s.entries[key] = &entry{resp: resp, lastAccessed: now}
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictLRU must be called with the write lock held.
func (s *Store) evictLRU() {
	var (
		oldestKey  string
		oldestTime time.Time
	)
	for key, e := range s.entries {
		if oldestKey == "" || e.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastAccessed
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

// removeExpired must be called with the write lock held.
func (s *Store) removeExpired(now time.Time) {
	for key, e := range s.entries {
		if e.resp.Expired(now) {
			delete(s.entries, key)
		}
	}
}
