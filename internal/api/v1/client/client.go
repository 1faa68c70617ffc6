// Package client is the HTTP client for the siteporter v1 API, used by the
// CLI and by integrations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/halcyonweb/siteporter/internal/api/v1/routes"
	"github.com/halcyonweb/siteporter/internal/db/models"
	"github.com/halcyonweb/siteporter/internal/types"
)

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// Client defines the interface for interacting with the siteporter API
type Client interface {
	CreateJob(ctx context.Context, req *types.JobRequest) (*models.Job, error)
	GetJob(ctx context.Context, id uint) (*types.JobStatusResponse, error)
	ListJobs(ctx context.Context, portalID uint, opts models.ListOptions) (*types.JobListResponse, error)
	CancelJob(ctx context.Context, id uint) error
	RemoveJob(ctx context.Context, id uint) error
	GetJobSummaryLog(ctx context.Context, id uint) ([]models.JobLogSummary, error)
	GetJobFullLog(ctx context.Context, id uint) ([]models.JobLog, error)
}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string
	// Timeout is the request timeout
	Timeout time.Duration
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: routes.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL string
	http    *http.Client
}

// New creates a new API client with the given options
func New(opts *Options) (*APIClient, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &APIClient{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// CreateJob submits a new job
func (c *APIClient) CreateJob(ctx context.Context, req *types.JobRequest) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches a job's status and category progress
func (c *APIClient) GetJob(ctx context.Context, id uint) (*types.JobStatusResponse, error) {
	var status types.JobStatusResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d", id), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListJobs fetches a page of jobs
func (c *APIClient) ListJobs(ctx context.Context, portalID uint, opts models.ListOptions) (*types.JobListResponse, error) {
	opts = opts.Normalized()
	path := fmt.Sprintf("/api/v1/jobs?portal_id=%d&limit=%d&offset=%d", portalID, opts.Limit, opts.Offset)
	var list types.JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CancelJob requests a cooperative stop
func (c *APIClient) CancelJob(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/cancel", id), nil, nil)
}

// RemoveJob deletes a terminal job
func (c *APIClient) RemoveJob(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/jobs/%d", id), nil, nil)
}

// GetJobSummaryLog fetches the per-category log aggregation
func (c *APIClient) GetJobSummaryLog(ctx context.Context, id uint) ([]models.JobLogSummary, error) {
	var summary []models.JobLogSummary
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d/log?mode=summary", id), nil, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// GetJobFullLog fetches every log entry in insertion order
func (c *APIClient) GetJobFullLog(ctx context.Context, id uint) ([]models.JobLog, error) {
	var entries []models.JobLog
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d/log?mode=full", id), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api error (%d)", resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
