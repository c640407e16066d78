package queue

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FailedJobRecord is a row of the failed_jobs table (see the
// create_failed_jobs_table migration).
type FailedJobRecord struct {
	ID       uint      `gorm:"primaryKey;autoIncrement"`
	JobType  string    `gorm:"size:255;not null;index"`
	Payload  string    `gorm:"type:text;not null"`
	Error    string    `gorm:"type:text"`
	Attempts int       `gorm:"not null;default:0"`
	FailedAt time.Time `gorm:"not null"`
}

func (FailedJobRecord) TableName() string { return "failed_jobs" }

// GormFailedStore persists failed jobs through GORM.
type GormFailedStore struct {
	db *gorm.DB
}

func NewGormFailedStore(db *gorm.DB) *GormFailedStore {
	return &GormFailedStore{db: db}
}

func (s *GormFailedStore) Save(ctx context.Context, job FailedJob) error {
	record := FailedJobRecord{
		JobType:  job.Type,
		Payload:  string(job.Payload),
		Error:    job.Err,
		Attempts: job.Attempts,
		FailedAt: job.FailedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("queue: save failed job: %w", err)
	}
	return nil
}

// Recent returns up to limit failed jobs, newest first.
func (s *GormFailedStore) Recent(ctx context.Context, limit int) ([]FailedJobRecord, error) {
	var out []FailedJobRecord
	err := s.db.WithContext(ctx).Order("failed_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
