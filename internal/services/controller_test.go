package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/types"
)

type ControllerTestSuite struct {
	ServiceTestSuite
}

func TestController(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) TestRunSuccessInDependencyOrder() {
	var order []string
	roles := &fakePorter{name: "roles", stageCount: 1, pagesPerStage: 1}
	roles.beforePage = func(*models.Job, int, int) { order = append(order, "roles") }
	users := &fakePorter{name: "users", deps: []string{"roles"}, stageCount: 1, pagesPerStage: 1}
	users.beforePage = func(*models.Job, int, int) { order = append(order, "users") }

	controller := s.newController(roles, users)
	job := s.createJob(5, models.JobTypeExport, models.JobStatusPending)

	s.NoError(controller.Run(s.ctx, job))

	s.Equal([]string{"roles", "users"}, order)

	updated, err := s.jobRepo.GetByID(s.ctx, job.ID)
	s.NoError(err)
	s.Equal(models.JobStatusDoneSuccess, updated.Status)
	s.NotNil(updated.CompletedAt)

	entries, err := s.logRepo.Full(s.ctx, job.ID)
	s.NoError(err)
	s.Require().NotEmpty(entries)
	s.Contains(entries[len(entries)-1].Message, "completed successfully")

	status, err := controller.Status(s.ctx, job.ID)
	s.NoError(err)
	s.Require().Len(status.Categories, 2)
	for _, category := range status.Categories {
		s.True(category.Completed, category.Category)
	}
}

func (s *ControllerTestSuite) TestRunFailureMarksDoneFailure() {
	roles := &fakePorter{name: "roles", stageCount: 1, pagesPerStage: 1}
	users := &fakePorter{
		name: "users", deps: []string{"roles"}, stageCount: 1, pagesPerStage: 2,
		failAt: &[2]int{0, 1}, failErr: errors.New("user table unreadable"),
	}

	controller := s.newController(roles, users)
	job := s.createJob(5, models.JobTypeExport, models.JobStatusPending)

	s.NoError(controller.Run(s.ctx, job))

	updated, err := s.jobRepo.GetByID(s.ctx, job.ID)
	s.NoError(err)
	s.Equal(models.JobStatusDoneFailure, updated.Status)
	s.Contains(updated.Error, "user table unreadable")
	s.NotNil(updated.CompletedAt)

	entries, err := s.logRepo.Full(s.ctx, job.ID)
	s.NoError(err)
	s.Require().NotEmpty(entries)
	s.Contains(entries[len(entries)-1].Message, "job failed")
}

func (s *ControllerTestSuite) TestRunObservesCancellation() {
	users := &fakePorter{name: "users", stageCount: 1, pagesPerStage: 3}
	controller := s.newController(users)
	job := s.createJob(5, models.JobTypeExport, models.JobStatusPending)

	users.beforePage = func(j *models.Job, stage, page int) {
		if page == 0 {
			s.Require().NoError(controller.Cancel(s.ctx, j.ID))
		}
	}

	s.NoError(controller.Run(s.ctx, job))

	updated, err := s.jobRepo.GetByID(s.ctx, job.ID)
	s.NoError(err)
	s.Equal(models.JobStatusCancelled, updated.Status)

	entries, err := s.logRepo.Full(s.ctx, job.ID)
	s.NoError(err)
	var found bool
	for _, entry := range entries {
		if entry.Message == "job stopped on cancellation" {
			found = true
		}
	}
	s.True(found)
}

func (s *ControllerTestSuite) TestRunSkipsCompletedCategoriesOnResume() {
	roles := &fakePorter{name: "roles", stageCount: 1, pagesPerStage: 1}
	users := &fakePorter{name: "users", deps: []string{"roles"}, stageCount: 1, pagesPerStage: 1}
	controller := s.newController(roles, users)
	job := s.createJob(5, models.JobTypeExport, models.JobStatusPending)

	// roles already finished in a previous attempt of this job
	cp := &models.Checkpoint{JobID: job.ID, Category: "roles", Stage: 1}
	s.Require().NoError(cp.SetCursor(models.StageCursor{}))
	s.Require().NoError(s.checkpointRepo.Upsert(s.ctx, cp))

	s.NoError(controller.Run(s.ctx, job))

	s.Empty(roles.calls)
	s.NotEmpty(users.calls)

	updated, err := s.jobRepo.GetByID(s.ctx, job.ID)
	s.NoError(err)
	s.Equal(models.JobStatusDoneSuccess, updated.Status)
}

func (s *ControllerTestSuite) TestIncrementalRunSeedsWatermark() {
	// a previous successful export provides the watermark
	previous := s.createJob(5, models.JobTypeExport, models.JobStatusPending)
	s.Require().NoError(s.jobRepo.UpdateStatus(s.ctx, previous.ID, models.JobStatusDoneSuccess))
	last, err := s.jobRepo.LastCompleted(s.ctx, 5, models.JobTypeExport)
	s.Require().NoError(err)
	s.Require().NotNil(last.CompletedAt)

	users := &fakePorter{name: "users", stageCount: 1, pagesPerStage: 1}
	controller := s.newController(users)

	job := s.createJob(5, models.JobTypeExport, models.JobStatusPending)
	job.Config = json.RawMessage(`{"incremental":true}`)
	s.Require().NoError(s.db.Save(job).Error)

	s.NoError(controller.Run(s.ctx, job))

	s.Require().Len(users.calls, 1)
	seed := users.calls[0].cursor
	s.Equal(models.CursorKindTimestamp, seed.Kind)
	s.True(seed.Since.Equal(*last.CompletedAt))
}

func (s *ControllerTestSuite) TestFullRunStartsWithZeroCursor() {
	users := &fakePorter{name: "users", stageCount: 1, pagesPerStage: 1}
	controller := s.newController(users)
	job := s.createJob(5, models.JobTypeExport, models.JobStatusPending)

	s.NoError(controller.Run(s.ctx, job))
	s.Require().Len(users.calls, 1)
	s.True(users.calls[0].cursor.IsZero())
}

func (s *ControllerTestSuite) TestCancelTerminalJobRejected() {
	controller := s.newController()
	job := s.createJob(5, models.JobTypeExport, models.JobStatusPending)
	s.Require().NoError(s.jobRepo.UpdateStatus(s.ctx, job.ID, models.JobStatusDoneSuccess))

	err := controller.Cancel(s.ctx, job.ID)
	s.ErrorIs(err, types.ErrJobTerminal)
}

func (s *ControllerTestSuite) TestRemoveRequiresTerminalStatus() {
	controller := s.newController()
	job := s.createJob(5, models.JobTypeExport, models.JobStatusPending)

	s.Error(controller.Remove(s.ctx, job.ID))

	s.Require().NoError(s.jobRepo.UpdateStatus(s.ctx, job.ID, models.JobStatusDoneSuccess))
	s.NoError(controller.Remove(s.ctx, job.ID))

	_, err := s.jobRepo.GetByID(s.ctx, job.ID)
	s.ErrorIs(err, types.ErrJobNotFound)
}

func (s *ControllerTestSuite) TestRegistryRejectsUnknownDependency() {
	users := &fakePorter{name: "users", deps: []string{"roles"}, stageCount: 1, pagesPerStage: 1}
	_, err := NewRegistry(users)
	s.Error(err)
}

func (s *ControllerTestSuite) TestRegistryRejectsDuplicateCategory() {
	a := &fakePorter{name: "users", stageCount: 1, pagesPerStage: 1}
	b := &fakePorter{name: "users", stageCount: 1, pagesPerStage: 1}
	_, err := NewRegistry(a, b)
	s.Error(err)
}
