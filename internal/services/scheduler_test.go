package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/types"
)

type SchedulerTestSuite struct {
	ServiceTestSuite
}

func TestScheduler(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func exportRequest(portalID uint) *types.JobRequest {
	return &types.JobRequest{
		PortalID: portalID,
		UserID:   1,
		Type:     models.JobTypeExport,
		Config:   json.RawMessage(`{}`),
	}
}

func (s *SchedulerTestSuite) TestAdmitsFirstJob() {
	job, err := s.scheduler.TryAdmit(s.ctx, exportRequest(5))
	s.NoError(err)
	s.Require().NotNil(job)
	s.NotZero(job.ID)
	s.Equal(models.JobStatusPending, job.Status)
	s.NotEmpty(job.PackageRef)
}

func (s *SchedulerTestSuite) TestRejectsSecondJobForSamePortal() {
	first, err := s.scheduler.TryAdmit(s.ctx, exportRequest(5))
	s.Require().NoError(err)

	_, err = s.scheduler.TryAdmit(s.ctx, exportRequest(5))
	s.Require().Error(err)

	var active *types.ActiveJobError
	s.Require().True(errors.As(err, &active))
	s.Equal(first.ID, active.JobID)

	// no second job row was created
	jobs, listErr := s.jobRepo.List(s.ctx, 5, models.ListOptions{Limit: 10})
	s.NoError(listErr)
	s.Len(jobs, 1)
}

func (s *SchedulerTestSuite) TestAdmitsOtherPortalInParallel() {
	_, err := s.scheduler.TryAdmit(s.ctx, exportRequest(5))
	s.Require().NoError(err)

	job, err := s.scheduler.TryAdmit(s.ctx, exportRequest(6))
	s.NoError(err)
	s.NotNil(job)
}

func (s *SchedulerTestSuite) TestAdmitsAfterPreviousJobFinished() {
	first, err := s.scheduler.TryAdmit(s.ctx, exportRequest(5))
	s.Require().NoError(err)
	s.Require().NoError(s.jobRepo.UpdateStatus(s.ctx, first.ID, models.JobStatusDoneSuccess))

	second, err := s.scheduler.TryAdmit(s.ctx, exportRequest(5))
	s.NoError(err)
	s.NotEqual(first.ID, second.ID)
}

func (s *SchedulerTestSuite) TestAdmitsAfterCancellation() {
	first, err := s.scheduler.TryAdmit(s.ctx, exportRequest(5))
	s.Require().NoError(err)
	s.Require().NoError(s.jobRepo.SetCancelled(s.ctx, first.ID))

	_, err = s.scheduler.TryAdmit(s.ctx, exportRequest(5))
	s.NoError(err)
}

func (s *SchedulerTestSuite) TestRejectsInvalidRequest() {
	_, err := s.scheduler.TryAdmit(s.ctx, &types.JobRequest{UserID: 1, Type: models.JobTypeExport})
	s.Error(err)

	_, err = s.scheduler.TryAdmit(s.ctx, &types.JobRequest{PortalID: 5, UserID: 1})
	s.Error(err)
}
