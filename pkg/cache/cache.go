// Package cache is the keyed, TTL-bounded store behind password-reset
// tokens and email verification codes.
//
// Every driver enforces expiry itself: an entry past its TTL reads as absent
// even if it has not been purged yet.
//
//	store, closeStore, _ := cache.Open(ctx)
//	defer closeStore()
//	store.Set(ctx, "password-reset:"+token, record, time.Hour)
//	ok, err := store.Get(ctx, "password-reset:"+token, &record)
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tickethub/tickethub/config"
	"github.com/tickethub/tickethub/pkg/database"
	"github.com/tickethub/tickethub/pkg/metrics"
)

// ErrInvalidTTL is returned when a write is attempted without a positive TTL.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

// Store is a string-keyed value store with per-key expiry. Values are
// JSON-encoded.
type Store interface {
	// Get decodes the live value under key into dest. It reports false when
	// the key is missing or expired.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	// Set stores value under key for ttl, replacing any previous value.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Add stores value only if key holds no live value. It reports whether
	// the write happened.
	Add(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	// Delete removes keys unconditionally. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Open builds the Store selected by CACHE_DRIVER. The returned close func
// releases whatever connection Open made.
func Open(ctx context.Context) (Store, func() error, error) {
	switch config.CacheDriver() {
	case "memory":
		m := NewMemoryStore()
		return m, func() error { m.Close(); return nil }, nil
	case "database":
		db, err := database.Connect()
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return NewDatabaseStore(db), sqlDB.Close, nil
	default:
		rdb, err := Connect(ctx)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(rdb), rdb.Close, nil
	}
}

func encode(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: encode: %w", err)
	}
	return data, nil
}

func decode(data []byte, dest interface{}) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache: decode: %w", err)
	}
	return nil
}

func observe(driver string, hit bool) {
	if hit {
		metrics.CacheHits.WithLabelValues(driver).Inc()
		return
	}
	metrics.CacheMisses.WithLabelValues(driver).Inc()
}
