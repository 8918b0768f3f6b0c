// Package client implements the REST side of the ETL backend contract:
// job listing, submission, cancellation, preview, and log download.
package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/config"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
)

// ErrNoJob is returned by LatestJob when the backend has no jobs at all.
var ErrNoJob = errors.New("no job found")

// Client is a thin wrapper over the backend job API.
type Client struct {
	http    *resty.Client
	baseURL string
}

// New creates a job API client from configuration.
func New(cfg *config.APIConfig) *Client {
	c := resty.New()
	c.SetBaseURL(cfg.BaseURL)
	c.SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		c.SetHeader("Authorization", "Bearer "+cfg.Token)
	}
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}

	return &Client{
		http:    c,
		baseURL: cfg.BaseURL,
	}
}

type apiError struct {
	Error string `json:"error"`
}

type listJobsResponse struct {
	Jobs []domain.JobSnapshot `json:"jobs"`
}

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	ScriptID string         `json:"script_id"`
	JobType  domain.JobKind `json:"job_type"`
	RowLimit *int64         `json:"row_limit,omitempty"`
}

// PreviewRequest is the body of POST /jobs/preview.
type PreviewRequest struct {
	ScriptIDs []string `json:"script_ids"`
	RowLimit  *int64   `json:"row_limit,omitempty"`
}

// ListJobs fetches a page of jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context, offset, limit int) ([]domain.JobSnapshot, error) {
	var out listJobsResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("offset", strconv.Itoa(offset)).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		SetError(&apiErr).
		Get("/jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("list jobs", resp, apiErr)
	}
	return out.Jobs, nil
}

// LatestJob fetches the most recently created job. Returns ErrNoJob when
// the backend has none.
func (c *Client) LatestJob(ctx context.Context) (*domain.JobSnapshot, error) {
	jobs, err := c.ListJobs(ctx, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrNoJob
	}
	job := jobs[0]
	return &job, nil
}

// CreateJob submits a new extraction job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*domain.JobSnapshot, error) {
	var out domain.JobSnapshot
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("create job", resp, apiErr)
	}
	return &out, nil
}

// CancelJob requests cancellation of a running job. The push channel for
// the job is not torn down here; it closes once a poll or push event
// observes the terminal cancelled status.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&apiErr).
		Post("/jobs/" + jobID + "/cancel")
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	if resp.IsError() {
		return statusError("cancel job", resp, apiErr)
	}
	return nil
}

// Preview runs the selected scripts in preview mode and returns row counts
// without starting a full job.
func (c *Client) Preview(ctx context.Context, req PreviewRequest) (*domain.PreviewResult, error) {
	var out domain.PreviewResult
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/jobs/preview")
	if err != nil {
		return nil, fmt.Errorf("failed to preview: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("preview", resp, apiErr)
	}
	return &out, nil
}

// JobLog downloads the full log file text for a job. This is distinct from
// the live activity buffer; it is the runner's complete log.
func (c *Client) JobLog(ctx context.Context, jobID string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(false).
		Get("/jobs/" + jobID + "/log")
	if err != nil {
		return "", fmt.Errorf("failed to fetch job log %s: %w", jobID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch job log returned HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	return resp.String(), nil
}

func statusError(op string, resp *resty.Response, apiErr apiError) error {
	if apiErr.Error != "" {
		return fmt.Errorf("%s returned HTTP %d: %s", op, resp.StatusCode(), apiErr.Error)
	}
	return fmt.Errorf("%s returned HTTP %d: %s", op, resp.StatusCode(), resp.String())
}
