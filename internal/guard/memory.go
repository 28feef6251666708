package guard

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process FailureStore. Records idle for longer than the
// TTL are evicted by a background goroutine.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record

	ttl time.Duration
	now func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithTTL controls how long an idle record stays in the map. It should be at
// least the guard window.
func WithTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates the store and starts eviction, which stops when ctx
// is cancelled.
func NewMemoryStore(ctx context.Context, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]Record),
		ttl:     DefaultWindow,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	go s.cleanup(ctx)
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || now.Sub(rec.LastAttempt) >= window {
		rec = Record{}
	}
	rec.Count++
	rec.LastAttempt = now
	s.records[key] = rec
	return rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked addresses.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep evicts records idle for longer than the TTL.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.records {
		if now.Sub(rec.LastAttempt) > s.ttl {
			delete(s.records, k)
			n++
		}
	}
	return n
}

func (s *MemoryStore) cleanup(ctx context.Context) {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
