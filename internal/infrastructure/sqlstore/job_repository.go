package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/repository"
)

const jobColumns = `id, command, strategy, target_ref, status, started_at, finished_at, exit_code`

type jobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) repository.JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Insert(ctx context.Context, job *domain.Job) error {
	query := r.db.Rebind(`
		INSERT INTO jobs (id, command, strategy, target_ref, status, started_at, finished_at, exit_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	var finishedAt sql.NullTime
	if job.FinishedAt != nil {
		finishedAt = sql.NullTime{Valid: true, Time: *job.FinishedAt}
	}

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.Command,
		job.Strategy,
		NullString(job.TargetRef),
		job.Status,
		job.StartedAt,
		finishedAt,
		NullInt(job.ExitCode),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

func (r *jobRepository) Update(ctx context.Context, jobID string, update domain.JobUpdate) error {
	query := r.db.Rebind(`
		UPDATE jobs
		SET status = ?, finished_at = ?, exit_code = ?
		WHERE id = ? AND status = ?
	`)

	var finishedAt sql.NullTime
	if update.FinishedAt != nil {
		finishedAt = sql.NullTime{Valid: true, Time: *update.FinishedAt}
	}

	result, err := r.db.ExecContext(ctx, query,
		update.Status,
		finishedAt,
		NullInt(update.ExitCode),
		jobID,
		domain.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM jobs WHERE id = ?`), jobID); err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("job %s: %w", jobID, repository.ErrNotFound)
	}
	return fmt.Errorf("job %s: %w", jobID, repository.ErrInvalidTransition)
}

func (r *jobRepository) AppendLogs(ctx context.Context, jobID string, entries []domain.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := r.db.Rebind(`
		INSERT INTO job_logs (job_id, seq, ts, stream, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job_id, seq) DO NOTHING
	`)

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query, jobID, e.Seq, e.Timestamp, e.Stream, e.Data); err != nil {
			return fmt.Errorf("failed to append log entry %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log entries: %w", err)
	}

	return nil
}

func (r *jobRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := r.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)

	var job domain.Job
	err := r.db.GetContext(ctx, &job, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (r *jobRepository) GetLogs(ctx context.Context, jobID string, afterSeq int64, limit int) ([]domain.LogEntry, error) {
	query := r.db.Rebind(`
		SELECT job_id, seq, ts, stream, data
		FROM job_logs
		WHERE job_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`)

	entries := []domain.LogEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, jobID, afterSeq, repository.ClampLogLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}

	return entries, nil
}

func (r *jobRepository) List(ctx context.Context, filter repository.JobFilter) ([]*domain.Job, error) {
	query, args := newSelect(`SELECT `+jobColumns+` FROM jobs WHERE 1=1`).
		where(filter.Filters).
		orderBy(filter.Order, "started_at DESC").
		page(filter.Page, filter.PerPage).
		build()

	jobs := []*domain.Job{}
	if err := r.db.SelectContext(ctx, &jobs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

func (r *jobRepository) Count(ctx context.Context, filter repository.JobFilter) (int, error) {
	query, args := newSelect(`SELECT COUNT(*) FROM jobs WHERE 1=1`).
		where(filter.Filters).
		build()

	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	return count, nil
}

func (r *jobRepository) FindRunning(ctx context.Context) ([]*domain.Job, error) {
	query := r.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE status = ? ORDER BY started_at ASC`)

	jobs := []*domain.Job{}
	if err := r.db.SelectContext(ctx, &jobs, query, domain.JobStatusRunning); err != nil {
		return nil, fmt.Errorf("failed to find running jobs: %w", err)
	}

	return jobs, nil
}
