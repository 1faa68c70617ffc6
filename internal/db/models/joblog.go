package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobLog is one append-only diagnostic entry scoped to a job. Entries are
// never mutated or deleted individually; insertion order is the only
// meaningful order.
type JobLog struct {
	gorm.Model
	JobID     uint      `json:"job_id" gorm:"not null;index"`
	Category  string    `json:"category" gorm:"index"`
	Message   string    `json:"message" gorm:"not null;type:text"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// JobLogSummary is a read-only per-category projection over a job's log
type JobLogSummary struct {
	Category  string    `json:"category"`
	Entries   int       `json:"entries"`
	Records   int       `json:"records"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Validate ensures that the log entry is valid
func (l *JobLog) Validate() error {
	if l.JobID == 0 {
		return fmt.Errorf("job log job id cannot be zero")
	}
	if l.Message == "" {
		return fmt.Errorf("job log message cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new log entry
func (l *JobLog) BeforeCreate(_ *gorm.DB) error {
	return l.Validate()
}
