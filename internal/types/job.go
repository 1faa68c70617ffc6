// Package types holds the request, response and error types shared between
// the service layer, the HTTP handlers and the API client.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/halcyonweb/siteporter/internal/db/models"
)

// ErrJobNotFound is returned when a job id does not resolve to a job
var ErrJobNotFound = errors.New("job not found")

// ErrJobTerminal is returned when an operation needs a live job but the job
// has already reached a final status
var ErrJobTerminal = errors.New("job already in a terminal status")

// ActiveJobError rejects a job submission because another job is still live
// for the same portal. It carries the conflicting job id so callers can
// surface it.
type ActiveJobError struct {
	JobID uint
}

func (e *ActiveJobError) Error() string {
	return fmt.Sprintf("another job (%d) is already active for this portal", e.JobID)
}

// JobConfig is the serialized job configuration supplied at submission time
type JobConfig struct {
	// Incremental seeds every category with the previous successful run's
	// completion time, so only entities modified since then are processed
	Incremental bool `json:"incremental,omitempty"`
	// IncludeDeleted carries soft-deleted entities into the package
	IncludeDeleted bool `json:"include_deleted,omitempty"`
	// PageSize overrides the per-stage unit-of-work size
	PageSize int `json:"page_size,omitempty"`
	// TargetDir overrides the base directory packages are written under
	TargetDir string `json:"target_dir,omitempty"`
}

// ParseJobConfig decodes a job's stored configuration, tolerating absence
func ParseJobConfig(raw json.RawMessage) (JobConfig, error) {
	var cfg JobConfig
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse job config: %w", err)
	}
	return cfg, nil
}

// JobRequest is the payload for submitting a new job
type JobRequest struct {
	PortalID uint            `json:"portal_id"`
	UserID   uint            `json:"user_id"`
	Type     models.JobType  `json:"type"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Validate ensures the submission payload is usable
func (r *JobRequest) Validate() error {
	if r.PortalID == 0 {
		return fmt.Errorf("portal_id is required")
	}
	if r.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if r.Type != models.JobTypeExport && r.Type != models.JobTypeImport {
		return fmt.Errorf("type must be export or import")
	}
	if _, err := ParseJobConfig(r.Config); err != nil {
		return err
	}
	return nil
}

// CategoryProgress is one category's position within a running or finished job
type CategoryProgress struct {
	Category  string    `json:"category"`
	Stage     int       `json:"stage"`
	Completed bool      `json:"completed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobStatusResponse is the status-query payload for a single job
type JobStatusResponse struct {
	Job        models.Job         `json:"job"`
	Categories []CategoryProgress `json:"categories"`
}

// JobListResponse is a page of jobs, most recent first
type JobListResponse struct {
	Jobs   []models.Job `json:"jobs"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}
