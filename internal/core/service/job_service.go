package service

import (
	"context"
	"fmt"

	"github.com/martijn/vmorch/internal/api/util"
	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/repository"
)

// JobService is the read side of the job store.
type JobService struct {
	jobRepo repository.JobRepository
}

func NewJobService(jobRepo repository.JobRepository) *JobService {
	return &JobService{
		jobRepo: jobRepo,
	}
}

// GetJob retrieves a job by ID
func (s *JobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return s.jobRepo.GetJob(ctx, id)
}

// GetLogs returns up to limit transcript entries recorded after afterSeq.
func (s *JobService) GetLogs(ctx context.Context, id string, afterSeq int64, limit int) ([]domain.LogEntry, error) {
	if _, err := s.jobRepo.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.jobRepo.GetLogs(ctx, id, afterSeq, limit)
}

// ListJobs lists jobs with filtering
func (s *JobService) ListJobs(ctx context.Context, filter repository.JobFilter) ([]*domain.Job, error) {
	return s.jobRepo.List(ctx, filter)
}

// CountJobs counts jobs with filtering
func (s *JobService) CountJobs(ctx context.Context, filter repository.JobFilter) (int, error) {
	return s.jobRepo.Count(ctx, filter)
}

// ListJobsForTarget returns the most recent jobs scoped to targetRef.
func (s *JobService) ListJobsForTarget(ctx context.Context, targetRef string, limit int) ([]*domain.Job, error) {
	if targetRef == "" {
		return nil, fmt.Errorf("target reference is required")
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	filter := repository.JobFilter{
		ListFilter: util.ListFilter{
			Filters: []util.QueryFilter{{Field: "target_ref", Operator: util.OpEq, Value: targetRef}},
			Order:   []util.OrderClause{{Field: "started_at", Direction: util.OrderDesc}},
			Page:    1,
			PerPage: limit,
		},
	}
	return s.jobRepo.List(ctx, filter)
}
