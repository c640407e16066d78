package migrations

import (
	"gorm.io/gorm"

	"github.com/tickethub/tickethub/pkg/migration"
	"github.com/tickethub/tickethub/pkg/queue"
)

func init() {
	migration.Register("20260301000001_create_failed_jobs_table", &CreateFailedJobsTable{})
}

type CreateFailedJobsTable struct{}

func (m *CreateFailedJobsTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&queue.FailedJobRecord{})
}

func (m *CreateFailedJobsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&queue.FailedJobRecord{})
}
