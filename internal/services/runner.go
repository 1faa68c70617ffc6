package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/db/repos"
	"github.com/halcyonweb/siteporter/internal/logger"
)

// ErrJobCancelled is returned by the runner when it observes a cancellation,
// either through the context or through the persisted job status
var ErrJobCancelled = errors.New("job cancelled")

// DefaultUnitPageSize bounds one unit of work, and with it the amount of
// re-work a crash can cost
const DefaultUnitPageSize = 500

// StageRunner drives a single category through its porter's ordered stages,
// persisting a checkpoint after every page so a crashed job re-does at most
// one page. It is the only writer of its (job, category) checkpoint key.
type StageRunner struct {
	porter      Porter
	jobs        *repos.JobRepository
	checkpoints *repos.CheckpointRepository
	logs        *repos.JobLogRepository
	pageSize    int
}

// NewStageRunner creates a runner for one category of one job
func NewStageRunner(porter Porter, jobs *repos.JobRepository, checkpoints *repos.CheckpointRepository, logs *repos.JobLogRepository, pageSize int) *StageRunner {
	if pageSize <= 0 {
		pageSize = DefaultUnitPageSize
	}
	return &StageRunner{
		porter:      porter,
		jobs:        jobs,
		checkpoints: checkpoints,
		logs:        logs,
		pageSize:    pageSize,
	}
}

// Run executes the category to completion, resuming from its checkpoint when
// one exists. A fresh category starts at stage 0 with the seed cursor (the
// zero cursor for full runs, a timestamp watermark for incremental ones).
// The final checkpoint is left in place as a high-water mark.
func (r *StageRunner) Run(ctx context.Context, job *models.Job, seed models.StageCursor) error {
	category := r.porter.Category()

	stage := 0
	cursor := seed
	cp, err := r.checkpoints.Get(ctx, job.ID, category)
	if err != nil {
		return err
	}
	if cp != nil {
		if cp.Stage >= r.porter.Stages() {
			logger.WithFields(map[string]interface{}{
				"job_id":   job.ID,
				"category": category,
			}).Info("category already complete, skipping")
			return nil
		}
		stage = cp.Stage
		cursor, err = cp.Cursor()
		if err != nil {
			return err
		}
	}

	totalRecords := 0
	for stage < r.porter.Stages() {
		for {
			if err := r.checkCancelled(ctx, job.ID); err != nil {
				return err
			}

			result, err := r.porter.RunStage(ctx, job, stage, cursor, r.pageSize)
			if err != nil {
				var te *TransientError
				if !errors.As(err, &te) {
					return fmt.Errorf("category %s stage %d: %w", category, stage, err)
				}
				// the porter stepped over the bad unit; record it and move on
				if logErr := r.logs.Append(ctx, job.ID, category,
					fmt.Sprintf("skipped unit %s: %v", te.Unit, te.Err), 0); logErr != nil {
					return logErr
				}
			}

			cursor = result.Cursor
			totalRecords += result.Records
			if err := r.persist(ctx, job.ID, category, stage, cursor); err != nil {
				return err
			}
			if result.Completed {
				break
			}
		}

		// stage boundary: advance with a reset cursor
		stage++
		cursor = models.StageCursor{}
		if err := r.persist(ctx, job.ID, category, stage, cursor); err != nil {
			return err
		}
	}

	return r.logs.Append(ctx, job.ID, category,
		fmt.Sprintf("category %s complete", category), totalRecords)
}

// checkCancelled observes stop requests at a unit-of-work boundary. A dead
// context means the process is going down: the job keeps its Running status
// and is resumed from its checkpoints on the next start. A Cancelled job
// status is a user cancellation and terminal.
func (r *StageRunner) checkCancelled(ctx context.Context, jobID uint) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("job interrupted: %w", err)
	}
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusCancelled {
		return ErrJobCancelled
	}
	return nil
}

func (r *StageRunner) persist(ctx context.Context, jobID uint, category string, stage int, cursor models.StageCursor) error {
	cp := &models.Checkpoint{JobID: jobID, Category: category, Stage: stage}
	if err := cp.SetCursor(cursor); err != nil {
		return err
	}
	return r.checkpoints.Upsert(ctx, cp)
}
