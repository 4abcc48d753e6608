package dto

import "time"

// ExecuteRequest is the body of POST /jobs and of the WebSocket execute
// action. Either Command or Preset must be set.
type ExecuteRequest struct {
	Command      string         `json:"command"`
	StrategyType string         `json:"strategyType"`
	WorkingDir   string         `json:"workingDir,omitempty"`
	HostAlias    string         `json:"hostAlias,omitempty"`
	Host         *TargetRequest `json:"host,omitempty"`
	TargetRef    string         `json:"targetRef,omitempty"`
	Preset       string         `json:"preset,omitempty"`
}

// TargetRequest is an explicit ssh destination for hosts without an alias
type TargetRequest struct {
	Host string `json:"host"`
	User string `json:"user,omitempty"`
	Port int    `json:"port,omitempty"`
}

// ExecuteResponse is returned with 202 Accepted
type ExecuteResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Link   string `json:"link"`
}

type JobResponse struct {
	ID         string     `json:"id"`
	Command    string     `json:"command"`
	Strategy   string     `json:"strategyType"`
	TargetRef  *string    `json:"targetRef,omitempty"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	ExitCode   *int       `json:"exitCode"`
	Active     bool       `json:"active"`
}

type JobListResponse struct {
	Items      []JobResponse  `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

type LogEntryResponse struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"`
	Data      string    `json:"data"`
}

// LogListResponse carries one page of a transcript. NextAfter is the value
// to pass as "after" to read the following page.
type LogListResponse struct {
	JobID     string             `json:"jobId"`
	Items     []LogEntryResponse `json:"items"`
	NextAfter int64              `json:"nextAfter"`
}

type ActiveJobResponse struct {
	JobID     string    `json:"jobId"`
	Strategy  string    `json:"strategyType"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"startedAt"`
}

type ActiveJobsResponse struct {
	Items []ActiveJobResponse `json:"items"`
}
