package repos

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/halcyonweb/siteporter/internal/db/models"
)

// JobLogRepository provides access to the append-only job log
type JobLogRepository struct {
	db *gorm.DB
}

// NewJobLogRepository creates a new job log repository instance
func NewJobLogRepository(db *gorm.DB) *JobLogRepository {
	return &JobLogRepository{db: db}
}

// Append adds one entry to a job's log
func (r *JobLogRepository) Append(ctx context.Context, jobID uint, category, message string, records int) error {
	entry := &models.JobLog{
		JobID:    jobID,
		Category: category,
		Message:  message,
		Records:  records,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	return nil
}

// Full returns every log entry for a job in insertion order
func (r *JobLogRepository) Full(ctx context.Context, jobID uint) ([]models.JobLog, error) {
	var entries []models.JobLog
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get job log: %w", err)
	}
	return entries, nil
}

// Summary aggregates a job's log per category: entry count, records
// processed, and the first/last entry times
func (r *JobLogRepository) Summary(ctx context.Context, jobID uint) ([]models.JobLogSummary, error) {
	var summaries []models.JobLogSummary
	err := r.db.WithContext(ctx).Model(&models.JobLog{}).
		Select("category, COUNT(*) AS entries, COALESCE(SUM(records), 0) AS records, MIN(created_at) AS first_seen, MAX(created_at) AS last_seen").
		Where("job_id = ?", jobID).
		Group("category").
		Order("category ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize job log: %w", err)
	}
	return summaries, nil
}
