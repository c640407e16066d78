package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one row of the cache_entries table.
type Entry struct {
	Key       string    `gorm:"column:cache_key;primaryKey;size:255"`
	Value     string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

func (Entry) TableName() string { return "cache_entries" }

// DatabaseStore keeps entries in a SQL table through GORM. Rows past
// expires_at are invisible to reads and removed by Prune.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// DatabaseOption configures a DatabaseStore.
type DatabaseOption func(*DatabaseStore)

// WithDatabaseClock overrides the time source used for expiry.
func WithDatabaseClock(now func() time.Time) DatabaseOption {
	return func(s *DatabaseStore) { s.now = now }
}

// NewDatabaseStore wraps db. The cache_entries table must exist (see the
// create_cache_entries_table migration).
func NewDatabaseStore(db *gorm.DB, opts ...DatabaseOption) *DatabaseStore {
	s := &DatabaseStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DatabaseStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	var row Entry
	err := s.db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key, s.now().UTC()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observe("database", false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: database get: %w", err)
	}

	observe("database", true)
	return true, decode([]byte(row.Value), dest)
}

func (s *DatabaseStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	data, err := encode(value)
	if err != nil {
		return err
	}

	row := Entry{Key: key, Value: string(data), ExpiresAt: s.now().UTC().Add(ttl)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("cache: database set: %w", err)
	}
	return nil
}

func (s *DatabaseStore) Add(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	data, err := encode(value)
	if err != nil {
		return false, err
	}

	now := s.now().UTC()
	added := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cache_key = ? AND expires_at <= ?", key, now).Delete(&Entry{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Entry{Key: key, Value: string(data), ExpiresAt: now.Add(ttl)})
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("cache: database add: %w", err)
	}
	return added, nil
}

func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("cache_key IN ?", keys).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("cache: database delete: %w", err)
	}
	return nil
}

// Prune deletes expired rows and reports how many were removed.
func (s *DatabaseStore) Prune(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("cache: database prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ping checks the connection for /health.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
