package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDoer describes the HTTP client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a running daemon's HTTP API. The zero value is not
// usable; construct with NewClient.
type Client struct {
	baseURL string
	client  HTTPDoer
}

// NewClient builds a client for the daemon listening at addr
// (host:port or full URL).
func NewClient(addr string) *Client {
	base := strings.TrimSpace(addr)
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithDoer builds a client with a caller-supplied HTTP doer.
func NewClientWithDoer(addr string, doer HTTPDoer) *Client {
	c := NewClient(addr)
	c.client = doer
	return c
}

// Submit creates a new job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Job fetches one job by ID.
func (c *Client) Job(ctx context.Context, jobID string) (*Job, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// Jobs lists jobs, optionally filtered by state.
func (c *Client) Jobs(ctx context.Context, states ...string) ([]Job, error) {
	path := "/api/jobs"
	if len(states) > 0 {
		query := url.Values{}
		for _, state := range states {
			query.Add("state", state)
		}
		path += "?" + query.Encode()
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Progress fetches the latest job state for a project.
func (c *Client) Progress(ctx context.Context, projectID string) (*ProgressResponse, error) {
	var resp ProgressResponse
	path := "/api/projects/" + url.PathEscape(projectID) + "/progress"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel stops a queued or running job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(jobID)+"/cancel", nil, nil)
}

// Requeue returns a stale running job to the queue.
func (c *Client) Requeue(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(jobID)+"/requeue", nil, nil)
}

// Stale lists running jobs with expired heartbeats.
func (c *Client) Stale(ctx context.Context) ([]Job, error) {
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/stale", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Generations lists a project's generations.
func (c *Client) Generations(ctx context.Context, projectID string) ([]Generation, error) {
	var resp GenerationListResponse
	path := "/api/projects/" + url.PathEscape(projectID) + "/generations"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Generations, nil
}

// DeleteGeneration removes a generation pointer.
func (c *Client) DeleteGeneration(ctx context.Context, generationID string) error {
	return c.do(ctx, http.MethodDelete, "/api/generations/"+url.PathEscape(generationID), nil, nil)
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Metrics fetches the monitor's latest snapshot.
func (c *Client) Metrics(ctx context.Context) (*MetricsResponse, error) {
	var resp MetricsResponse
	if err := c.do(ctx, http.MethodGet, "/api/metrics", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetCapacity adjusts the worker pool capacity and returns the applied
// value.
func (c *Client) SetCapacity(ctx context.Context, capacity int) (int, error) {
	var resp CapacityResponse
	if err := c.do(ctx, http.MethodPost, "/api/pool/capacity", CapacityRequest{Capacity: capacity}, &resp); err != nil {
		return 0, err
	}
	return resp.Capacity, nil
}

// TestNotify asks the daemon to send a test notification.
func (c *Client) TestNotify(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/test-notification", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("daemon address not configured")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed (is the daemon running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
