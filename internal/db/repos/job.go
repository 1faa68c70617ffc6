package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/types"
)

// removeTimeout bounds job removal separately from the caller's deadline;
// cascading deletes over large job logs can take a while
const removeTimeout = 60 * time.Second

// activeStatuses are the non-terminal job statuses
var activeStatuses = []models.JobStatus{models.JobStatusPending, models.JobStatusRunning}

// JobRepository provides access to job-related database operations
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository instance
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job in the database
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID
func (r *JobRepository) GetByID(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// List returns jobs most recent first, optionally filtered by portal.
// A portalID of zero returns jobs for all portals.
func (r *JobRepository) List(ctx context.Context, portalID uint, opts models.ListOptions) ([]models.Job, error) {
	opts = opts.Normalized()
	var jobs []models.Job
	query := r.db.WithContext(ctx).Model(&models.Job{})
	if portalID != 0 {
		query = query.Where(&models.Job{PortalID: portalID})
	}
	err := query.
		Order("created_at DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateStatus sets the status of a job. DoneSuccess and DoneFailure stamp
// the completion time in the same write. A cancelled job is never touched;
// cancellation wins over any later transition.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uint, status models.JobStatus) error {
	updates := map[string]interface{}{models.JobStatusField: status}
	if status == models.JobStatusDoneSuccess || status == models.JobStatusDoneFailure {
		now := time.Now().UTC()
		updates[models.JobCompletedAtField] = &now
	}

	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status <> ?", id, models.JobStatusCancelled).
		Updates(updates).Error
}

// SetError records the failure detail on the job row
func (r *JobRepository) SetError(ctx context.Context, id uint, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Update("error", errMsg).Error
}

// SetCancelled marks a job cancelled. Distinct from DoneFailure: it records a
// voluntary stop. Terminal jobs are left as they are.
func (r *JobRepository) SetCancelled(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status IN ?", id, activeStatuses).
		Update(models.JobStatusField, models.JobStatusCancelled).Error
}

// Remove deletes a job together with its checkpoints and logs. The delete
// runs under its own timeout, detached from the caller's cancellation, so a
// slow cascade cannot be interrupted halfway through.
func (r *JobRepository) Remove(ctx context.Context, id uint) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeTimeout)
	defer cancel()

	return r.db.WithContext(rctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("job_id = ?", id).Delete(&models.Checkpoint{}).Error; err != nil {
			return fmt.Errorf("failed to delete job checkpoints: %w", err)
		}
		if err := tx.Unscoped().Where("job_id = ?", id).Delete(&models.JobLog{}).Error; err != nil {
			return fmt.Errorf("failed to delete job logs: %w", err)
		}
		if err := tx.Unscoped().Delete(&models.Job{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		return nil
	})
}

// FirstActive returns the single non-terminal job for a portal, if any.
// A portalID of zero searches across all portals.
func (r *JobRepository) FirstActive(ctx context.Context, portalID uint) (*models.Job, error) {
	return r.firstActive(r.db.WithContext(ctx), portalID)
}

func (r *JobRepository) firstActive(db *gorm.DB, portalID uint) (*models.Job, error) {
	var job models.Job
	query := db.Where("status IN ?", activeStatuses)
	if portalID != 0 {
		query = query.Where("portal_id = ?", portalID)
	}
	err := query.Order("created_at ASC").First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}
	return &job, nil
}

// LastCompleted returns the most recent successfully completed job of the
// given type for a portal, or nil. Incremental runs take their watermark from
// this job's completion time.
func (r *JobRepository) LastCompleted(ctx context.Context, portalID uint, jobType models.JobType) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where(&models.Job{PortalID: portalID, Type: jobType, Status: models.JobStatusDoneSuccess}).
		Order("completed_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed job: %w", err)
	}
	return &job, nil
}
