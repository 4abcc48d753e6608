package execution

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/repository"
	"github.com/martijn/vmorch/internal/events"
)

// memStore is an in-memory JobRepository with failure injection.
type memStore struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	logs      map[string]map[int64]domain.LogEntry
	appendErr error
	insertErr error
	// appendDelay makes every AppendLogs call block, like a slow database.
	appendDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		jobs: make(map[string]*domain.Job),
		logs: make(map[string]map[int64]domain.LogEntry),
	}
}

func (s *memStore) Insert(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("duplicate job id %s", job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) Update(_ context.Context, jobID string, u domain.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	if job.Status != domain.JobStatusRunning {
		return repository.ErrInvalidTransition
	}
	job.Apply(u)
	return nil
}

func (s *memStore) AppendLogs(_ context.Context, jobID string, entries []domain.LogEntry) error {
	s.mu.Lock()
	delay := s.appendDelay
	s.mu.Unlock()
	time.Sleep(delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	if s.logs[jobID] == nil {
		s.logs[jobID] = make(map[int64]domain.LogEntry)
	}
	for _, e := range entries {
		if _, dup := s.logs[jobID][e.Seq]; !dup {
			s.logs[jobID][e.Seq] = e
		}
	}
	return nil
}

func (s *memStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) GetLogs(_ context.Context, jobID string, afterSeq int64, limit int) ([]domain.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.LogEntry{}
	for _, e := range s.logs[jobID] {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Seq < out[k].Seq })
	limit = repository.ClampLogLimit(limit)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) List(context.Context, repository.JobFilter) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) Count(context.Context, repository.JobFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs), nil
}

func (s *memStore) FindRunning(context.Context) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		if j.Status == domain.JobStatusRunning {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := s.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("job %s not stored: %v", id, err)
	}
	return job
}

func (s *memStore) entries(id string) []domain.LogEntry {
	out, _ := s.GetLogs(context.Background(), id, 0, repository.MaxLogLimit)
	return out
}

func (s *memStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *memStore) setAppendDelay(d time.Duration) {
	s.mu.Lock()
	s.appendDelay = d
	s.mu.Unlock()
}

func (s *memStore) setAppendErr(err error) {
	s.mu.Lock()
	s.appendErr = err
	s.mu.Unlock()
}

// eventLog records published events.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(e events.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) forJob(id string) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.JobID == id {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) count(id string, typ events.Type) int {
	n := 0
	for _, e := range l.forJob(id) {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	waitForWithin(t, 10*time.Second, what, cond)
}

func waitForWithin(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
