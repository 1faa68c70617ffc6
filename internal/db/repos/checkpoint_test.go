package repos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/halcyonweb/siteporter/internal/db/models"
)

type CheckpointRepositoryTestSuite struct {
	DBRepositoryTestSuite
}

func TestCheckpointRepository(t *testing.T) {
	suite.Run(t, new(CheckpointRepositoryTestSuite))
}

func (s *CheckpointRepositoryTestSuite) TestUpsertInsertsThenUpdates() {
	job := s.createTestJob(5)

	s.createTestCheckpoint(job.ID, "users", 0, models.LastIDCursor(10))

	stored, err := s.checkpointRepo.Get(s.ctx, job.ID, "users")
	s.NoError(err)
	s.Require().NotNil(stored)
	s.Equal(0, stored.Stage)

	cursor, err := stored.Cursor()
	s.NoError(err)
	s.Equal(models.CursorKindLastID, cursor.Kind)
	s.Equal(uint(10), cursor.LastID)

	// same key, advanced cursor
	s.createTestCheckpoint(job.ID, "users", 0, models.LastIDCursor(20))
	stored, err = s.checkpointRepo.Get(s.ctx, job.ID, "users")
	s.NoError(err)
	cursor, err = stored.Cursor()
	s.NoError(err)
	s.Equal(uint(20), cursor.LastID)

	// only one row per (job, category)
	checkpoints, err := s.checkpointRepo.GetByJob(s.ctx, job.ID)
	s.NoError(err)
	s.Len(checkpoints, 1)
}

func (s *CheckpointRepositoryTestSuite) TestUpsertAdvancesStage() {
	job := s.createTestJob(5)

	s.createTestCheckpoint(job.ID, "users", 0, models.LastIDCursor(10))
	s.createTestCheckpoint(job.ID, "users", 1, models.StageCursor{})

	stored, err := s.checkpointRepo.Get(s.ctx, job.ID, "users")
	s.NoError(err)
	s.Equal(1, stored.Stage)

	cursor, err := stored.Cursor()
	s.NoError(err)
	s.True(cursor.IsZero())
}

func (s *CheckpointRepositoryTestSuite) TestUpsertIgnoresRegressingStage() {
	job := s.createTestJob(5)

	s.createTestCheckpoint(job.ID, "users", 2, models.OffsetCursor(7))

	// a lower stage must not roll progress back
	regress := &models.Checkpoint{JobID: job.ID, Category: "users", Stage: 1}
	s.Require().NoError(regress.SetCursor(models.OffsetCursor(0)))
	s.NoError(s.checkpointRepo.Upsert(s.ctx, regress))

	stored, err := s.checkpointRepo.Get(s.ctx, job.ID, "users")
	s.NoError(err)
	s.Equal(2, stored.Stage)

	cursor, err := stored.Cursor()
	s.NoError(err)
	s.Equal(7, cursor.Offset)
}

func (s *CheckpointRepositoryTestSuite) TestCursorRoundTrip() {
	job := s.createTestJob(5)
	since := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	s.createTestCheckpoint(job.ID, "taxonomy", 0, models.TimestampCursor(since))

	stored, err := s.checkpointRepo.Get(s.ctx, job.ID, "taxonomy")
	s.NoError(err)
	cursor, err := stored.Cursor()
	s.NoError(err)
	s.Equal(models.CursorKindTimestamp, cursor.Kind)
	s.True(cursor.Since.Equal(since))
}

func (s *CheckpointRepositoryTestSuite) TestGetByJob() {
	job := s.createTestJob(5)
	other := s.createTestJob(6)

	s.createTestCheckpoint(job.ID, "roles", 1, models.StageCursor{})
	s.createTestCheckpoint(job.ID, "users", 0, models.LastIDCursor(3))
	s.createTestCheckpoint(other.ID, "users", 2, models.StageCursor{})

	checkpoints, err := s.checkpointRepo.GetByJob(s.ctx, job.ID)
	s.NoError(err)
	s.Len(checkpoints, 2)
	s.Equal("roles", checkpoints[0].Category)
	s.Equal("users", checkpoints[1].Category)

	missing, err := s.checkpointRepo.Get(s.ctx, job.ID, "assets")
	s.NoError(err)
	s.Nil(missing)
}
