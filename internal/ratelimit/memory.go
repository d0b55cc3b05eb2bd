package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	expires time.Time
}

// MemoryStore keeps at most maxKeys windows. When full, expired windows are
// dropped first and then the window closest to expiry.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	maxKeys int
	now     func() time.Time
}

func NewMemoryStore(maxKeys int) *MemoryStore {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryStore{
		windows: make(map[string]*window),
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w, ok := s.windows[key]
	if ok && !now.Before(w.expires) {
		delete(s.windows, key)
		ok = false
	}
	if !ok {
		if len(s.windows) >= s.maxKeys {
			s.evictLocked(now)
		}
		w = &window{expires: now.Add(ttl)}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// Sweep removes expired windows and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Len returns the number of tracked windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.expires) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) evictLocked(now time.Time) {
	if s.sweepLocked(now) > 0 {
		return
	}
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, w := range s.windows {
		if oldestKey == "" || w.expires.Before(oldest) {
			oldestKey, oldest = key, w.expires
		}
	}
	delete(s.windows, oldestKey)
}
