package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/logger"
	"github.com/halcyonweb/siteporter/internal/types"
)

// Scheduler admits jobs under the single-active-job-per-portal policy. Two
// jobs racing over the same portal's checkpoints would corrupt resume state,
// so the active check and the job insert run as one admission: a process-wide
// mutex serializes admissions and the pair executes inside one transaction.
// All submissions go through the owning service process, which is what makes
// the mutex sufficient.
type Scheduler struct {
	mu sync.Mutex
	db *gorm.DB
}

// NewScheduler creates a new scheduler instance
func NewScheduler(db *gorm.DB) *Scheduler {
	return &Scheduler{db: db}
}

// TryAdmit validates the request and creates the job record if no other job
// is active for the portal. On conflict it returns an ActiveJobError carrying
// the live job's id and creates nothing.
func (s *Scheduler) TryAdmit(ctx context.Context, req *types.JobRequest) (*models.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := &models.Job{
		PortalID:   req.PortalID,
		UserID:     req.UserID,
		Type:       req.Type,
		Status:     models.JobStatusPending,
		PackageRef: uuid.NewString(),
		Config:     req.Config,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active models.Job
		err := tx.Where("portal_id = ? AND status IN ?", req.PortalID,
			[]models.JobStatus{models.JobStatusPending, models.JobStatusRunning}).
			Order("created_at ASC").
			First(&active).Error
		if err == nil {
			return &types.ActiveJobError{JobID: active.ID}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check for active job: %w", err)
		}
		return tx.Create(job).Error
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"job_id":    job.ID,
		"portal_id": job.PortalID,
		"type":      job.Type.String(),
	}).Info("job admitted")
	return job, nil
}
