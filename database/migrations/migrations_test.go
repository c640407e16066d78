package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "github.com/tickethub/tickethub/database/migrations"
	"github.com/tickethub/tickethub/pkg/migration"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestRunStatusRollback(t *testing.T) {
	db := openDB(t)
	r := migration.New(db)
	ctx := context.Background()

	applied, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20260301000000_create_cache_entries_table",
		"20260301000001_create_failed_jobs_table",
	}, applied)
	assert.True(t, db.Migrator().HasTable("cache_entries"))
	assert.True(t, db.Migrator().HasTable("failed_jobs"))

	again, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	status, err := r.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	for _, s := range status {
		assert.True(t, s.Ran, s.Name)
		assert.Equal(t, 1, s.Batch)
	}

	reverted, err := r.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20260301000001_create_failed_jobs_table",
		"20260301000000_create_cache_entries_table",
	}, reverted)
	assert.False(t, db.Migrator().HasTable("cache_entries"))

	nothing, err := r.Rollback(ctx)
	require.NoError(t, err)
	assert.Empty(t, nothing)
}
