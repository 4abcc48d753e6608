package repository

import (
	"context"
	"errors"

	"github.com/martijn/vmorch/internal/api/util"
	"github.com/martijn/vmorch/internal/core/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when an update targets a job that is no longer running.
	ErrInvalidTransition = errors.New("job is not running")
)

const (
	DefaultLogLimit = 1000
	MaxLogLimit     = 10000
)

// Columns a job list may be filtered and ordered by. Field names reach SQL
// verbatim, so callers validate against these lists.
var (
	JobQueryFields = []string{"id", "command", "strategy", "target_ref", "status", "exit_code", "started_at", "finished_at"}
	JobOrderFields = []string{"id", "command", "strategy", "status", "exit_code", "started_at", "finished_at"}
)

// JobFilter embeds ListFilter for generic query/order/pagination
type JobFilter struct {
	util.ListFilter
}

// JobRepository is the durable record of jobs and their transcripts.
type JobRepository interface {
	Insert(ctx context.Context, job *domain.Job) error
	// Update applies a status transition. Only running jobs can be updated.
	Update(ctx context.Context, jobID string, update domain.JobUpdate) error
	// AppendLogs stores entries idempotently: an entry with an existing (job, seq) is skipped.
	AppendLogs(ctx context.Context, jobID string, entries []domain.LogEntry) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	// GetLogs returns entries with seq > afterSeq in ascending order.
	GetLogs(ctx context.Context, jobID string, afterSeq int64, limit int) ([]domain.LogEntry, error)
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, error)
	Count(ctx context.Context, filter JobFilter) (int, error)

	// Find all jobs still persisted as running (for startup recovery)
	FindRunning(ctx context.Context) ([]*domain.Job, error)
}

// ClampLogLimit applies the default and maximum log query sizes.
func ClampLogLimit(limit int) int {
	if limit <= 0 {
		return DefaultLogLimit
	}
	if limit > MaxLogLimit {
		return MaxLogLimit
	}
	return limit
}
