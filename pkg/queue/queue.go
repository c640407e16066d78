// Package queue runs background jobs on a pluggable driver.
//
//	q := queue.New(queue.NewMemoryDriver())
//	q.Register("notification.mail", func() queue.Job { return &MailJob{mailer: m} })
//	q.Dispatch(ctx, &MailJob{To: "a@x.io", Subject: "Hi"})
//	go q.Run(ctx, 2)
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tickethub/tickethub/pkg/logger"
	"github.com/tickethub/tickethub/pkg/metrics"
)

// Job is one unit of background work. Jobs are JSON-encoded onto the
// driver, so exported fields are the payload.
type Job interface {
	// Name identifies the job type in the registry.
	Name() string
	Handle(ctx context.Context) error
}

// Driver is the queue storage backend. Pop returns (nil, nil) when no job
// arrived before its internal timeout.
type Driver interface {
	Push(ctx context.Context, payload []byte) error
	Pop(ctx context.Context) ([]byte, error)
}

// FailedJob is a job that exhausted its retries.
type FailedJob struct {
	Type     string
	Payload  []byte
	Err      string
	Attempts int
	FailedAt time.Time
}

// FailedStore keeps jobs that exhausted their retries.
type FailedStore interface {
	Save(ctx context.Context, job FailedJob) error
}

// ErrUnknownJob is returned by Dispatch for a job name with no factory.
var ErrUnknownJob = errors.New("queue: job type not registered")

// Manager owns the driver, job registry and retry policy.
type Manager struct {
	driver   Driver
	failed   FailedStore
	maxRetry int
	backoff  func(attempt int) time.Duration

	mu       sync.RWMutex
	registry map[string]func() Job
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxRetry sets the attempts per job (default 3).
func WithMaxRetry(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxRetry = n
		}
	}
}

// WithBackoff sets the pause before a retry.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(m *Manager) { m.backoff = fn }
}

// WithFailedStore overrides the in-memory failed-job store.
func WithFailedStore(s FailedStore) Option {
	return func(m *Manager) { m.failed = s }
}

func New(driver Driver, opts ...Option) *Manager {
	m := &Manager{
		driver:   driver,
		failed:   &MemoryFailedStore{},
		maxRetry: 3,
		backoff:  func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
		registry: map[string]func() Job{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register makes a job type decodable by name.
func (m *Manager) Register(name string, factory func() Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[name] = factory
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Dispatch encodes job and pushes it onto the driver.
func (m *Manager) Dispatch(ctx context.Context, job Job) error {
	m.mu.RLock()
	_, ok := m.registry[job.Name()]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, job.Name())
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.Name(), err)
	}
	env, err := json.Marshal(envelope{Type: job.Name(), Payload: payload})
	if err != nil {
		return fmt.Errorf("queue: marshal envelope: %w", err)
	}
	return m.driver.Push(ctx, env)
}

// Run starts n workers and blocks until ctx is cancelled and every worker
// has returned.
func (m *Manager) Run(ctx context.Context, n int) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.work(ctx)
		}()
	}
	logger.Info("queue: workers started", "count", n)
	wg.Wait()
	logger.Info("queue: workers stopped")
}

func (m *Manager) work(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := m.driver.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("queue: pop failed", "error", err)
			sleep(ctx, 500*time.Millisecond)
			continue
		}
		if raw != nil {
			m.process(ctx, raw)
		}
	}
}

func (m *Manager) process(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Error("queue: bad envelope", "error", err)
		return
	}

	m.mu.RLock()
	factory, ok := m.registry[env.Type]
	m.mu.RUnlock()
	if !ok {
		logger.Warn("queue: unregistered job type", "type", env.Type)
		return
	}

	job := factory()
	if err := json.Unmarshal(env.Payload, job); err != nil {
		logger.Error("queue: unmarshal payload", "type", env.Type, "error", err)
		return
	}

	m.runWithRetry(ctx, job, env)
}

func (m *Manager) runWithRetry(ctx context.Context, job Job, env envelope) {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= m.maxRetry; attempt++ {
		if lastErr = job.Handle(ctx); lastErr == nil {
			metrics.RecordQueueJob(env.Type, "success", start)
			logger.Debug("queue: job processed", "type", env.Type, "attempt", attempt)
			return
		}
		logger.Warn("queue: job failed", "type", env.Type, "attempt", attempt, "error", lastErr)
		if attempt < m.maxRetry && !sleep(ctx, m.backoff(attempt)) {
			break
		}
	}

	metrics.RecordQueueJob(env.Type, "failed", start)
	logger.Error("queue: job exhausted retries", "type", env.Type, "error", lastErr)

	failed := FailedJob{
		Type:     env.Type,
		Payload:  env.Payload,
		Err:      lastErr.Error(),
		Attempts: m.maxRetry,
		FailedAt: time.Now(),
	}
	if err := m.failed.Save(context.WithoutCancel(ctx), failed); err != nil {
		logger.Error("queue: persist failed job", "type", env.Type, "error", err)
	}
}

// sleep waits for d or until ctx is done. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
