package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/db/repos"
	"github.com/halcyonweb/siteporter/internal/logger"
	"github.com/halcyonweb/siteporter/internal/types"
)

// Controller orchestrates a job end to end. It owns every job status
// transition:
//
//	pending -> running -> {done-success, done-failure}
//	pending -> cancelled
//	running -> cancelled
//
// Category failures become a status transition plus a log entry, never a
// crash of the hosting process. Persistence failures propagate to the caller
// and never mark the job successful.
type Controller struct {
	scheduler   *Scheduler
	jobs        *repos.JobRepository
	checkpoints *repos.CheckpointRepository
	logs        *repos.JobLogRepository
	registry    *Registry
	pageSize    int
}

// NewController creates a new job controller instance
func NewController(scheduler *Scheduler, jobs *repos.JobRepository, checkpoints *repos.CheckpointRepository, logs *repos.JobLogRepository, registry *Registry) *Controller {
	return &Controller{
		scheduler:   scheduler,
		jobs:        jobs,
		checkpoints: checkpoints,
		logs:        logs,
		registry:    registry,
		pageSize:    DefaultUnitPageSize,
	}
}

// Submit admits and persists a new job. On admission conflict the returned
// error is an ActiveJobError carrying the live job's id.
func (c *Controller) Submit(ctx context.Context, req *types.JobRequest) (*models.Job, error) {
	return c.scheduler.TryAdmit(ctx, req)
}

// Cancel requests a cooperative stop. The running stage runner observes the
// new status at its next unit-of-work boundary; the job may keep running for
// up to one unit after this returns.
func (c *Controller) Cancel(ctx context.Context, jobID uint) error {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return types.ErrJobTerminal
	}
	if err := c.jobs.SetCancelled(ctx, jobID); err != nil {
		return err
	}
	return c.logs.Append(ctx, jobID, "", "cancellation requested", 0)
}

// Remove deletes a terminal job with its checkpoints and logs
func (c *Controller) Remove(ctx context.Context, jobID uint) error {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return fmt.Errorf("cannot remove job %d while status is %s", jobID, job.Status)
	}
	return c.jobs.Remove(ctx, jobID)
}

// Status returns the job together with per-category progress
func (c *Controller) Status(ctx context.Context, jobID uint) (*types.JobStatusResponse, error) {
	job, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	checkpoints, err := c.checkpoints.GetByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &types.JobStatusResponse{Job: *job}
	for _, cp := range checkpoints {
		progress := types.CategoryProgress{
			Category:  cp.Category,
			Stage:     cp.Stage,
			UpdatedAt: cp.UpdatedAt,
		}
		if porter, ok := c.registry.Get(cp.Category); ok {
			progress.Completed = cp.Stage >= porter.Stages()
		}
		resp.Categories = append(resp.Categories, progress)
	}
	return resp, nil
}

// SummaryLog returns the per-category aggregation of a job's log
func (c *Controller) SummaryLog(ctx context.Context, jobID uint) ([]models.JobLogSummary, error) {
	if _, err := c.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return c.logs.Summary(ctx, jobID)
}

// FullLog returns every log entry of a job in insertion order
func (c *Controller) FullLog(ctx context.Context, jobID uint) ([]models.JobLog, error) {
	if _, err := c.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return c.logs.Full(ctx, jobID)
}

// List returns jobs most recent first, optionally filtered by portal
func (c *Controller) List(ctx context.Context, portalID uint, opts models.ListOptions) ([]models.Job, error) {
	return c.jobs.List(ctx, portalID, opts)
}

// Run drives an admitted job to a terminal status. Category errors are
// absorbed into the job record; only persistence failures are returned.
func (c *Controller) Run(ctx context.Context, job *models.Job) error {
	log := logger.WithFields(map[string]interface{}{
		"job_id":    job.ID,
		"portal_id": job.PortalID,
		"type":      job.Type.String(),
	})

	if err := c.jobs.UpdateStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		return err
	}
	log.Info("job running")

	cfg, err := types.ParseJobConfig(job.Config)
	if err != nil {
		return c.fail(ctx, job.ID, err)
	}
	pageSize := c.pageSize
	if cfg.PageSize > 0 {
		pageSize = cfg.PageSize
	}

	seed, err := c.seedCursor(ctx, job, cfg)
	if err != nil {
		return err
	}

	done, err := c.completedCategories(ctx, job.ID)
	if err != nil {
		return err
	}

	for _, porter := range c.registry.Porters() {
		category := porter.Category()
		if done[category] {
			continue
		}
		for _, dep := range porter.Dependencies() {
			if !done[dep] {
				return c.fail(ctx, job.ID,
					fmt.Errorf("category %s cannot start: dependency %s incomplete", category, dep))
			}
		}

		runner := NewStageRunner(porter, c.jobs, c.checkpoints, c.logs, pageSize)
		err := runner.Run(ctx, job, seed)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Process shutdown, not a user cancellation. The job keeps its
			// running status and is resumed from its checkpoints next start.
			log.Warn("job interrupted, will resume on restart")
			return err
		}
		if errors.Is(err, ErrJobCancelled) {
			log.Info("job cancelled")
			if err := c.jobs.SetCancelled(ctx, job.ID); err != nil {
				return err
			}
			return c.logs.Append(ctx, job.ID, category, "job stopped on cancellation", 0)
		}
		if err != nil {
			return c.fail(ctx, job.ID, err)
		}
		done[category] = true
	}

	if err := c.jobs.UpdateStatus(ctx, job.ID, models.JobStatusDoneSuccess); err != nil {
		return err
	}
	log.Info("job succeeded")
	return c.logs.Append(ctx, job.ID, "", "job completed successfully", 0)
}

// seedCursor builds the starting cursor for fresh categories: zero for full
// runs, the previous successful run's completion time for incremental ones
func (c *Controller) seedCursor(ctx context.Context, job *models.Job, cfg types.JobConfig) (models.StageCursor, error) {
	if !cfg.Incremental {
		return models.StageCursor{}, nil
	}
	last, err := c.jobs.LastCompleted(ctx, job.PortalID, job.Type)
	if err != nil {
		return models.StageCursor{}, err
	}
	if last == nil || last.CompletedAt == nil {
		return models.StageCursor{}, nil
	}
	return models.TimestampCursor(*last.CompletedAt), nil
}

// completedCategories loads the checkpoint set once at (re)start to decide
// which categories can be skipped entirely
func (c *Controller) completedCategories(ctx context.Context, jobID uint) (map[string]bool, error) {
	checkpoints, err := c.checkpoints.GetByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(checkpoints))
	for _, cp := range checkpoints {
		if porter, ok := c.registry.Get(cp.Category); ok && cp.Stage >= porter.Stages() {
			done[cp.Category] = true
		}
	}
	return done, nil
}

// fail records the failure on the job and marks it done-failure. The
// returned error reflects only persistence problems.
func (c *Controller) fail(ctx context.Context, jobID uint, cause error) error {
	logger.WithField("job_id", jobID).Errorf("job failed: %v", cause)
	if err := c.jobs.SetError(ctx, jobID, cause.Error()); err != nil {
		return err
	}
	if err := c.jobs.UpdateStatus(ctx, jobID, models.JobStatusDoneFailure); err != nil {
		return err
	}
	return c.logs.Append(ctx, jobID, "", fmt.Sprintf("job failed: %v", cause), 0)
}
