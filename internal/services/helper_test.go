package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/db/repos"
)

// ServiceTestSuite provides a base test suite wiring the engine over an
// in-memory database
type ServiceTestSuite struct {
	suite.Suite
	db             *gorm.DB
	ctx            context.Context
	jobRepo        *repos.JobRepository
	checkpointRepo *repos.CheckpointRepository
	logRepo        *repos.JobLogRepository
	scheduler      *Scheduler
}

func (s *ServiceTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err, "Failed to create in-memory database")

	err = db.AutoMigrate(&models.Job{}, &models.Checkpoint{}, &models.JobLog{}, &models.PortalSetting{})
	require.NoError(s.T(), err, "Failed to run database migrations")

	s.db = db
	s.jobRepo = repos.NewJobRepository(db)
	s.checkpointRepo = repos.NewCheckpointRepository(db)
	s.logRepo = repos.NewJobLogRepository(db)
	s.scheduler = NewScheduler(db)
	s.ctx = context.Background()
}

func (s *ServiceTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

// createJob persists a job directly, bypassing admission
func (s *ServiceTestSuite) createJob(portalID uint, jobType models.JobType, status models.JobStatus) *models.Job {
	job := &models.Job{
		PortalID:   portalID,
		UserID:     1,
		Type:       jobType,
		Status:     status,
		PackageRef: "test-package",
		Config:     json.RawMessage(`{}`),
	}
	s.Require().NoError(s.jobRepo.Create(s.ctx, job))
	return job
}

func (s *ServiceTestSuite) newController(porters ...Porter) *Controller {
	registry, err := NewRegistry(porters...)
	s.Require().NoError(err)
	return NewController(s.scheduler, s.jobRepo, s.checkpointRepo, s.logRepo, registry)
}

// stageCall records one porter invocation
type stageCall struct {
	stage  int
	page   int
	cursor models.StageCursor
}

// fakePorter is a scripted porter: every stage has pagesPerStage pages, and
// its cursor is a plain page offset. Failure points are addressed by
// (stage, page).
type fakePorter struct {
	name          string
	deps          []string
	stageCount    int
	pagesPerStage int
	calls         []stageCall
	transientAt   *[2]int
	failAt        *[2]int
	failErr       error
	beforePage    func(job *models.Job, stage, page int)
}

func (p *fakePorter) Category() string       { return p.name }
func (p *fakePorter) Dependencies() []string { return p.deps }
func (p *fakePorter) Stages() int            { return p.stageCount }

func (p *fakePorter) RunStage(_ context.Context, job *models.Job, stage int, cursor models.StageCursor, _ int) (StageResult, error) {
	page := 0
	if cursor.Kind == models.CursorKindOffset {
		page = cursor.Offset
	}
	p.calls = append(p.calls, stageCall{stage: stage, page: page, cursor: cursor})

	if p.beforePage != nil {
		p.beforePage(job, stage, page)
	}
	if p.failAt != nil && p.failAt[0] == stage && p.failAt[1] == page {
		return StageResult{}, p.failErr
	}

	result := StageResult{
		Cursor:    models.OffsetCursor(page + 1),
		Records:   2,
		Completed: page+1 >= p.pagesPerStage,
	}
	if p.transientAt != nil && p.transientAt[0] == stage && p.transientAt[1] == page {
		return result, &TransientError{Unit: "record-13", Err: errBadRecord}
	}
	return result, nil
}

var errBadRecord = &unreadableRecordError{}

type unreadableRecordError struct{}

func (e *unreadableRecordError) Error() string { return "record data unavailable" }

// TestService runs the base suite to verify setup and teardown
func TestService(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
