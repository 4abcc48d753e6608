package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/martijn/vmorch/internal/api/dto"
)

// JobClient calls the REST API of a running vmorch server. Operations that
// act on live processes go through it, since those processes belong to the
// server.
type JobClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewJobClient(baseURL, token string) *JobClient {
	return &JobClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// CancelResponse is the body returned by a successful cancel.
type CancelResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// CancelJob sends POST /jobs/{id}/cancel.
func (c *JobClient) CancelJob(ctx context.Context, jobID string) (*CancelResponse, error) {
	var result CancelResponse
	if err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ActiveJobs sends GET /jobs/active.
func (c *JobClient) ActiveJobs(ctx context.Context) (*dto.ActiveJobsResponse, error) {
	var result dto.ActiveJobsResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/active", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *JobClient) do(ctx context.Context, method, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.Token != "" {
		httpReq.Header.Add("Authorization", "Bearer "+c.Token)
	}
	httpReq.Header.Add("Accept", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage extracts the message of an ErrorResponse body, falling back
// to the raw body.
func errorMessage(body []byte) string {
	var e dto.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}
