// Package migration runs versioned schema changes for the SQL side of the
// service (cache entries, failed jobs).
//
// Migrations register themselves from init() in database/migrations:
//
//	func init() {
//	    migration.Register("20260301000000_create_cache_entries_table", &CreateCacheEntriesTable{})
//	}
//
// and run from the CLI:
//
//	tickethub migrate
//	tickethub migrate:rollback
//	tickethub migrate:status
package migration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tickethub/tickethub/pkg/logger"
)

// Migration is one reversible schema change.
type Migration interface {
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// record is a row of the tracking table.
type record struct {
	ID    uint      `gorm:"primaryKey;autoIncrement"`
	Name  string    `gorm:"uniqueIndex;size:255;not null"`
	Batch int       `gorm:"not null"`
	RunAt time.Time `gorm:"autoCreateTime"`
}

func (record) TableName() string { return "tickethub_migrations" }

// ─── Registry ─────────────────────────────────────────────────────────────────

type named struct {
	name string
	m    Migration
}

var (
	regMu    sync.Mutex
	registry []named
)

// Register adds a migration. Names are timestamp-prefixed and run in
// lexical order.
func Register(name string, m Migration) {
	regMu.Lock()
	defer regMu.Unlock()
	registry = append(registry, named{name: name, m: m})
}

func registered() []named {
	regMu.Lock()
	defer regMu.Unlock()
	out := append([]named(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ─── Runner ───────────────────────────────────────────────────────────────────

// Runner applies and tracks migrations against one database.
type Runner struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Runner {
	return &Runner{db: db}
}

// Status describes one registered migration.
type Status struct {
	Name  string
	Ran   bool
	Batch int
}

func (r *Runner) ensureTable(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&record{}); err != nil {
		return fmt.Errorf("migration: ensure table: %w", err)
	}
	return nil
}

func (r *Runner) ran(ctx context.Context) (map[string]record, error) {
	var rows []record
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("migration: load history: %w", err)
	}
	out := make(map[string]record, len(rows))
	for _, row := range rows {
		out[row.Name] = row
	}
	return out, nil
}

func (r *Runner) lastBatch(ctx context.Context) (int, error) {
	var last struct{ Max int }
	err := r.db.WithContext(ctx).Model(&record{}).Select("COALESCE(MAX(batch), 0) AS max").Scan(&last).Error
	return last.Max, err
}

// Run applies every pending migration as one batch and returns the names
// it applied.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := r.ran(ctx)
	if err != nil {
		return nil, err
	}
	last, err := r.lastBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration: last batch: %w", err)
	}

	batch := last + 1
	var applied []string
	for _, reg := range registered() {
		if _, ok := done[reg.name]; ok {
			continue
		}
		logger.Info("migration: running", "name", reg.name, "batch", batch)
		if err := reg.m.Up(r.db.WithContext(ctx)); err != nil {
			return applied, fmt.Errorf("migration: %s up: %w", reg.name, err)
		}
		if err := r.db.WithContext(ctx).Create(&record{Name: reg.name, Batch: batch}).Error; err != nil {
			return applied, fmt.Errorf("migration: record %s: %w", reg.name, err)
		}
		applied = append(applied, reg.name)
	}

	logger.Info("migration: done", "ran", len(applied))
	return applied, nil
}

// Rollback reverses the most recent batch and returns the names it
// reverted, newest first.
func (r *Runner) Rollback(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	last, err := r.lastBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration: last batch: %w", err)
	}
	if last == 0 {
		return nil, nil
	}

	var rows []record
	if err := r.db.WithContext(ctx).Where("batch = ?", last).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("migration: load batch %d: %w", last, err)
	}

	byName := map[string]Migration{}
	for _, reg := range registered() {
		byName[reg.name] = reg.m
	}

	var reverted []string
	for _, row := range rows {
		m, ok := byName[row.Name]
		if !ok {
			return reverted, fmt.Errorf("migration: %s is not registered", row.Name)
		}
		logger.Info("migration: rolling back", "name", row.Name)
		if err := m.Down(r.db.WithContext(ctx)); err != nil {
			return reverted, fmt.Errorf("migration: %s down: %w", row.Name, err)
		}
		if err := r.db.WithContext(ctx).Delete(&record{}, row.ID).Error; err != nil {
			return reverted, fmt.Errorf("migration: forget %s: %w", row.Name, err)
		}
		reverted = append(reverted, row.Name)
	}
	return reverted, nil
}

// Status lists every registered migration in run order.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := r.ran(ctx)
	if err != nil {
		return nil, err
	}

	var out []Status
	for _, reg := range registered() {
		row, ok := done[reg.name]
		out = append(out, Status{Name: reg.name, Ran: ok, Batch: row.Batch})
	}
	return out, nil
}
