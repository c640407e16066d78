package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store. It is not shared between processes,
// so it only suits single-instance deployments and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time

	stop chan struct{}
	once sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the time source used for expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a MemoryStore with a background janitor that purges
// expired entries every minute. Call Close to stop it.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.janitor(time.Minute)
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	s.mu.Lock()
	item, ok := s.items[key]
	if ok && !s.now().Before(item.expiresAt) {
		delete(s.items, key)
		ok = false
	}
	s.mu.Unlock()

	observe("memory", ok)
	if !ok {
		return false, nil
	}
	return true, decode(item.data, dest)
}

func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	data, err := encode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.items[key] = memoryItem{data: data, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Add(_ context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	data, err := encode(value)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if item, ok := s.items[key]; ok && now.Before(item.expiresAt) {
		return false, nil
	}
	s.items[key] = memoryItem{data: data, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.items, k)
	}
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Purge drops every expired entry.
func (s *MemoryStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, item := range s.items {
		if !now.Before(item.expiresAt) {
			delete(s.items, k)
		}
	}
}

// Close stops the janitor. Safe to call multiple times.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Purge()
		}
	}
}
