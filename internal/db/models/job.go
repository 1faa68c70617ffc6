package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Field names for the job model
const (
	// JobStatusField is the database field name for the job status
	JobStatusField = "status"
	// JobCompletedAtField is the database field name for the job completion timestamp
	JobCompletedAtField = "completed_at"
)

// JobType distinguishes export runs from import runs
type JobType int

// Job type constants
const (
	// JobTypeUnknown represents an unknown or invalid job type
	JobTypeUnknown JobType = iota
	// JobTypeExport indicates the job extracts site content into a package
	JobTypeExport
	// JobTypeImport indicates the job loads site content from a package
	JobTypeImport
)

var jobTypeNames = []string{"unknown", "export", "import"}

// JobStatus represents the current state of a job in the system
type JobStatus int

// Job status constants
const (
	// JobStatusUnknown represents an unknown or invalid job status
	JobStatusUnknown JobStatus = iota
	// JobStatusPending indicates the job is waiting to be picked up
	JobStatusPending
	// JobStatusRunning indicates the job is currently being processed
	JobStatusRunning
	// JobStatusDoneSuccess indicates the job has finished successfully
	JobStatusDoneSuccess
	// JobStatusDoneFailure indicates the job stopped on an unrecoverable error
	JobStatusDoneFailure
	// JobStatusCancelled indicates the job was stopped on request
	JobStatusCancelled
)

var jobStatusNames = []string{
	"unknown",
	"pending",
	"running",
	"done-success",
	"done-failure",
	"cancelled",
}

// Job represents one end-to-end export or import run for a portal
type Job struct {
	gorm.Model
	PortalID    uint            `json:"portal_id" gorm:"not null;index"`
	UserID      uint            `json:"user_id" gorm:"not null;index"` // initiating user
	Type        JobType         `json:"type" gorm:"not null;index"`
	Status      JobStatus       `json:"status" gorm:"not null;index"`
	PackageRef  string          `json:"package_ref" gorm:"not null"` // export package directory name
	Config      json.RawMessage `json:"config,omitempty" gorm:"type:jsonb"`
	Error       string          `json:"error,omitempty" gorm:"type:text"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at" gorm:"index"`
}

// IsTerminal reports whether the status is one of the final states
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusDoneSuccess, JobStatusDoneFailure, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseJobStatus converts a string representation of a job status to JobStatus type
func ParseJobStatus(str string) (JobStatus, error) {
	for i, status := range jobStatusNames {
		if status == str {
			return JobStatus(i), nil
		}
	}
	return JobStatusUnknown, fmt.Errorf("invalid job status: %s", str)
}

func (s JobStatus) String() string {
	if int(s) < 0 || int(s) >= len(jobStatusNames) {
		return jobStatusNames[JobStatusUnknown]
	}
	return jobStatusNames[s]
}

// MarshalJSON implements the json.Marshaler interface for JobStatus
func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for JobStatus
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseJobStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// ParseJobType converts a string representation of a job type to JobType type
func ParseJobType(str string) (JobType, error) {
	for i, name := range jobTypeNames {
		if name == str {
			return JobType(i), nil
		}
	}
	return JobTypeUnknown, fmt.Errorf("invalid job type: %s", str)
}

func (t JobType) String() string {
	if int(t) < 0 || int(t) >= len(jobTypeNames) {
		return jobTypeNames[JobTypeUnknown]
	}
	return jobTypeNames[t]
}

// MarshalJSON implements the json.Marshaler interface for JobType
func (t JobType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for JobType
func (t *JobType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	typ, err := ParseJobType(str)
	if err != nil {
		return err
	}

	*t = typ
	return nil
}

// Validate ensures that the job data is valid
func (j *Job) Validate() error {
	if j.PortalID == 0 {
		return fmt.Errorf("job portal id cannot be zero")
	}
	if j.Type != JobTypeExport && j.Type != JobTypeImport {
		return fmt.Errorf("invalid job type: %d", j.Type)
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new job
func (j *Job) BeforeCreate(_ *gorm.DB) error {
	if j.Status == JobStatusUnknown {
		j.Status = JobStatusPending
	}
	return j.Validate()
}
