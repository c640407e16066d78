package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueFull is returned by MemoryDriver.Push when the buffer is full.
var ErrQueueFull = errors.New("queue: memory driver full")

// MemoryDriver is an in-process, channel-backed driver. Jobs do not
// survive a restart.
type MemoryDriver struct {
	ch chan []byte
}

// NewMemoryDriver buffers up to 1000 jobs.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{ch: make(chan []byte, 1000)}
}

// Push never blocks the caller.
func (d *MemoryDriver) Push(_ context.Context, payload []byte) error {
	select {
	case d.ch <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *MemoryDriver) Pop(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload := <-d.ch:
		return payload, nil
	}
}

// MemoryFailedStore keeps failed jobs in a slice.
type MemoryFailedStore struct {
	mu   sync.Mutex
	jobs []FailedJob
}

func (s *MemoryFailedStore) Save(_ context.Context, job FailedJob) error {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	return nil
}

// All returns a snapshot of the failed jobs.
func (s *MemoryFailedStore) All() []FailedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailedJob(nil), s.jobs...)
}
