package domain

import (
	"time"
)

type JobStatus string

const (
	JobStatusRunning  JobStatus = "running"
	JobStatusSpawned  JobStatus = "spawned"
	JobStatusSuccess  JobStatus = "success"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// IsTerminal reports whether no further transitions are tracked for the status.
func (s JobStatus) IsTerminal() bool {
	return s != JobStatusRunning
}

// IsFinished reports whether the status carries a finish time.
func (s JobStatus) IsFinished() bool {
	return s == JobStatusSuccess || s == JobStatusFailed || s == JobStatusCanceled
}

// CanTransition reports whether a job may move from s to next.
// running is the only state with outgoing edges.
func (s JobStatus) CanTransition(next JobStatus) bool {
	return s == JobStatusRunning && next != JobStatusRunning && next.Valid()
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusRunning, JobStatusSpawned, JobStatusSuccess, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

type Job struct {
	ID         string     `db:"id"`
	Command    string     `db:"command"`
	Strategy   string     `db:"strategy"`
	TargetRef  *string    `db:"target_ref"`
	Status     JobStatus  `db:"status"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	ExitCode   *int       `db:"exit_code"`
}

func NewJob(id, command, strategy string, targetRef *string) *Job {
	return &Job{
		ID:        id,
		Command:   command,
		Strategy:  strategy,
		TargetRef: targetRef,
		Status:    JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// JobUpdate carries the fields written on a status transition.
type JobUpdate struct {
	Status     JobStatus
	FinishedAt *time.Time
	ExitCode   *int
}

// Finish builds the update for a transition into a finished state.
func Finish(status JobStatus, exitCode *int) JobUpdate {
	now := time.Now().UTC()
	return JobUpdate{Status: status, FinishedAt: &now, ExitCode: exitCode}
}

// Apply mutates j with u. Callers check CanTransition first.
func (j *Job) Apply(u JobUpdate) {
	j.Status = u.Status
	j.FinishedAt = u.FinishedAt
	j.ExitCode = u.ExitCode
}
