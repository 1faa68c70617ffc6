package services

import (
	"context"
	"time"

	"github.com/halcyonweb/siteporter/internal/db/repos"
	"github.com/halcyonweb/siteporter/internal/logger"
)

// DefaultPollInterval is how often the dispatcher looks for pending jobs
const DefaultPollInterval = 5 * time.Second

// Dispatcher is the long-lived background task that picks up admitted jobs
// and drives them one at a time. One dispatcher runs per service process,
// matching the one-active-job execution model. On startup it first picks up
// any job left running by a previous process and resumes it from its
// checkpoints before touching the pending queue.
type Dispatcher struct {
	jobs       *repos.JobRepository
	controller *Controller
	interval   time.Duration
}

// NewDispatcher creates a new dispatcher instance
func NewDispatcher(jobs *repos.JobRepository, controller *Controller, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Dispatcher{jobs: jobs, controller: controller, interval: interval}
}

// Start runs the dispatch loop until the context is cancelled
func (d *Dispatcher) Start(ctx context.Context) {
	logger.Info("dispatcher started")
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.dispatchNext(ctx)
		}
	}
}

func (d *Dispatcher) dispatchNext(ctx context.Context) {
	job, err := d.jobs.FirstActive(ctx, 0)
	if err != nil {
		logger.Errorf("failed to poll for runnable jobs: %v", err)
		return
	}
	if job == nil {
		return
	}
	if err := d.controller.Run(ctx, job); err != nil {
		logger.WithField("job_id", job.ID).Errorf("job run aborted: %v", err)
	}
}
