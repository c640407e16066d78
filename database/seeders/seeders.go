// Package seeders holds named functions that fill the document store with
// development data.
//
//	func init() {
//	    seeders.Register("admin", SeedAdmin)
//	}
//
// Run them with: tickethub db:seed
package seeders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tickethub/tickethub/app/repositories"
)

// SeederFunc writes its records through the repositories.
type SeederFunc func(ctx context.Context, repos repositories.Repositories) error

type seederEntry struct {
	name string
	fn   SeederFunc
}

var (
	mu      sync.Mutex
	entries []seederEntry
)

// Register adds a seeder. Call it from init().
func Register(name string, fn SeederFunc) {
	mu.Lock()
	defer mu.Unlock()
	entries = append(entries, seederEntry{name: name, fn: fn})
}

// Names lists registered seeders in registration order.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// RunAll executes every seeder in registration order and stops at the
// first failure. It returns the names that completed.
func RunAll(ctx context.Context, repos repositories.Repositories) ([]string, error) {
	mu.Lock()
	current := make([]seederEntry, len(entries))
	copy(current, entries)
	mu.Unlock()

	var done []string
	for _, e := range current {
		if err := e.fn(ctx, repos); err != nil {
			return done, fmt.Errorf("seeder %q: %w", e.name, err)
		}
		done = append(done, e.name)
	}
	return done, nil
}

// ignoreDuplicate lets seeders run twice against the same store.
func ignoreDuplicate(err error) error {
	if errors.Is(err, repositories.ErrDuplicate) {
		return nil
	}
	return err
}
