package migrations

import (
	"gorm.io/gorm"

	"github.com/tickethub/tickethub/pkg/cache"
	"github.com/tickethub/tickethub/pkg/migration"
)

func init() {
	migration.Register("20260301000000_create_cache_entries_table", &CreateCacheEntriesTable{})
}

// CreateCacheEntriesTable backs CACHE_DRIVER=database.
type CreateCacheEntriesTable struct{}

func (m *CreateCacheEntriesTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&cache.Entry{})
}

func (m *CreateCacheEntriesTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&cache.Entry{})
}
