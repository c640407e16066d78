// Package schedule runs periodic housekeeping tasks.
//
//	s := schedule.New()
//	s.Every(time.Minute).Name("cache:prune").WithoutOverlapping().Run(pruneCache)
//	s.Start(ctx)
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tickethub/tickethub/pkg/logger"
)

// Task is the unit of scheduled work.
type Task func(ctx context.Context) error

type entry struct {
	id        string
	interval  time.Duration
	task      Task
	noOverlap bool

	mu      sync.Mutex
	lastRun time.Time
	running bool
}

// Scheduler dispatches due entries on a one-second tick.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{}
}

// Builder configures one entry before Run registers it.
type Builder struct {
	s *Scheduler
	e *entry
}

// Every starts an entry that runs once per interval. The first run happens
// on the first tick after Start.
func (s *Scheduler) Every(interval time.Duration) *Builder {
	return &Builder{s: s, e: &entry{interval: interval}}
}

// Name sets the identifier used in logs.
func (b *Builder) Name(id string) *Builder {
	b.e.id = id
	return b
}

// WithoutOverlapping skips a run while the previous one is still going.
func (b *Builder) WithoutOverlapping() *Builder {
	b.e.noOverlap = true
	return b
}

func (b *Builder) Run(task Task) {
	b.e.task = task
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.e.id == "" {
		b.e.id = fmt.Sprintf("task-%d", len(b.s.entries)+1)
	}
	b.s.entries = append(b.s.entries, b.e)
}

// Start runs the tick loop in the background until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		logger.Info("schedule: scheduler started", "entries", len(s.List()))
		for {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				logger.Info("schedule: scheduler stopped")
				return
			case now := <-ticker.C:
				s.tick(ctx, now)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	current := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	for _, e := range current {
		s.dispatch(ctx, e, now)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, e *entry, now time.Time) {
	e.mu.Lock()
	if !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.interval {
		e.mu.Unlock()
		return
	}
	if e.noOverlap && e.running {
		e.mu.Unlock()
		logger.Warn("schedule: skipping overlapping task", "id", e.id)
		return
	}
	e.running = true
	e.lastRun = now
	e.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			if r := recover(); r != nil {
				logger.Error("schedule: task panicked", "id", e.id, "panic", r)
			}
		}()

		logger.Debug("schedule: running task", "id", e.id)
		if err := e.task(ctx); err != nil {
			logger.Error("schedule: task failed", "id", e.id, "error", err)
		}
	}()
}

// List describes the registered entries for CLI display.
func (s *Scheduler) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, fmt.Sprintf("%s  [every %s]", e.id, e.interval))
	}
	return out
}
