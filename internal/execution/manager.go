// Package execution runs commands as tracked jobs under one of three
// strategies, streams their output and records their outcome.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/repository"
	"github.com/martijn/vmorch/internal/events"
)

const (
	storeTimeout   = 10 * time.Second
	archiveTimeout = 60 * time.Second
)

// Archiver stores the transcript of a finished job.
type Archiver interface {
	Archive(ctx context.Context, jobID string) error
}

// Options configures a Manager. Store, Publisher and all three strategies
// are required.
type Options struct {
	Store      repository.JobRepository
	Publisher  events.Publisher
	Strategies []Strategy
	Registry   *Registry
	Archiver   Archiver
	Logger     *slog.Logger
}

// Request is one invocation accepted by Execute.
type Request struct {
	// ID is optional. Callers that must subscribe before the first event
	// allocate it with NewJobID.
	ID         string
	Command    string
	Kind       Kind
	WorkingDir string
	HostAlias  string
	Target     *Target
	TargetRef  string
}

// ActiveInfo describes a running job.
type ActiveInfo struct {
	ID        string    `json:"jobId"`
	Strategy  Kind      `json:"strategy"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"startedAt"`
}

// Manager owns the job lifecycle: it persists jobs, starts processes,
// pipes their output and applies transitions.
type Manager struct {
	store      repository.JobRepository
	publisher  events.Publisher
	registry   *Registry
	strategies map[Kind]Strategy
	archiver   Archiver
	logger     *slog.Logger
	metrics    *metrics
	tracer     trace.Tracer

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup // Execute calls past the closing check
	running  sync.WaitGroup // pipelines and archive uploads
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}

	strategies := make(map[Kind]Strategy, len(Kinds))
	for _, s := range opts.Strategies {
		if _, err := ParseKind(string(s.Kind())); err != nil {
			return nil, err
		}
		if _, dup := strategies[s.Kind()]; dup {
			return nil, fmt.Errorf("duplicate strategy: %s", s.Kind())
		}
		strategies[s.Kind()] = s
	}
	for _, k := range Kinds {
		if _, ok := strategies[k]; !ok {
			return nil, fmt.Errorf("missing strategy: %s", k)
		}
	}

	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:      opts.Store,
		publisher:  opts.Publisher,
		registry:   registry,
		strategies: strategies,
		archiver:   opts.Archiver,
		logger:     logger,
		metrics:    m,
		tracer:     otel.Tracer(instrumentationName),
	}, nil
}

// NewJobID allocates an id for Request.ID.
func (m *Manager) NewJobID() string {
	return uuid.NewString()
}

// Execute validates req, records the job and starts it. It returns as soon
// as the process is started; output and completion are handled
// asynchronously.
//
// Input errors are returned without creating a job. When a strategy rejects
// the request after the job exists, the job is marked failed and a
// *RejectedError carrying the job id is returned. When the operating system
// fails to start the process the job is marked failed and no error is
// returned.
func (m *Manager) Execute(ctx context.Context, req Request) (string, error) {
	ctx, span := m.tracer.Start(ctx, "execution.execute", trace.WithAttributes(
		attribute.String("strategy", string(req.Kind)),
	))
	defer span.End()

	if err := validate(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if !m.enter() {
		return "", ErrShuttingDown
	}
	defer m.inflight.Done()

	id := req.ID
	if id == "" {
		id = m.NewJobID()
	}
	span.SetAttributes(attribute.String("job_id", id))

	var targetRef *string
	if req.TargetRef != "" {
		ref := req.TargetRef
		targetRef = &ref
	}

	job := domain.NewJob(id, req.Command, string(req.Kind), targetRef)
	if err := m.store.Insert(ctx, job); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to record job: %w", err)
	}
	m.metrics.jobStarted(req.Kind)

	log := m.logger.With("job_id", id, "strategy", req.Kind)
	active := newActiveJob(job, req.Kind, nil)

	proc, err := m.strategies[req.Kind].Spawn(ctx, SpawnRequest{
		Command:    req.Command,
		WorkingDir: req.WorkingDir,
		HostAlias:  req.HostAlias,
		Target:     req.Target,
	})
	if err != nil {
		log.Warn("job failed to start", "error", err)
		m.failStart(active, err)

		var startErr *StartError
		if errors.As(err, &startErr) {
			return id, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return id, &RejectedError{JobID: id, Err: err}
	}
	active.proc = proc

	if proc.Detached() {
		m.spawned(active)
		log.Info("terminal spawned", "pid", proc.Pid())
		return id, nil
	}

	m.registry.Put(active)
	m.metrics.activeDelta(1)
	m.publisher.Publish(events.Event{
		Type:     events.JobStarted,
		JobID:    id,
		Strategy: string(req.Kind),
		Command:  req.Command,
		Status:   string(domain.JobStatusRunning),
	})
	log.Info("job started", "pid", proc.Pid())

	m.running.Add(1)
	go m.run(active)

	return id, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Command) == "" {
		return ErrEmptyCommand
	}
	if _, err := ParseKind(string(req.Kind)); err != nil {
		return err
	}
	if req.Kind == KindSSH && req.HostAlias == "" && (req.Target == nil || req.Target.Host == "") {
		return ErrMissingHost
	}
	return nil
}

func (m *Manager) enter() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	m.inflight.Add(1)
	return true
}

// failStart records a job whose process never started.
func (m *Manager) failStart(a *ActiveJob, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.transition(domain.JobStatusFailed) {
		return
	}
	msg := "Process error: " + cause.Error()
	m.appendLog(a.nextEntry(domain.StreamSystem, msg))
	m.persist(a.ID, domain.Finish(domain.JobStatusFailed, nil))
	m.publisher.Publish(events.Event{
		Type:     events.JobError,
		JobID:    a.ID,
		Strategy: string(a.Kind),
		Status:   string(domain.JobStatusFailed),
		Error:    msg,
	})
	m.metrics.jobFinished(a.Kind, string(domain.JobStatusFailed))
	m.archive(a.ID)
}

// spawned records the hand-off of a detached terminal.
func (m *Manager) spawned(a *ActiveJob) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.transition(domain.JobStatusSpawned)
	m.persist(a.ID, domain.JobUpdate{Status: domain.JobStatusSpawned})
	m.publisher.Publish(events.Event{
		Type:     events.JobStarted,
		JobID:    a.ID,
		Strategy: string(a.Kind),
		Command:  a.Command,
		Status:   string(domain.JobStatusSpawned),
	})
	m.metrics.jobFinished(a.Kind, string(domain.JobStatusSpawned))
}

// Cancel asks the process of a running job to terminate and records the
// job as canceled. ErrJobNotFound is returned when the job has no live
// process; no record is changed in that case.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	_, span := m.tracer.Start(ctx, "execution.cancel", trace.WithAttributes(
		attribute.String("job_id", jobID),
	))
	defer span.End()

	a, ok := m.registry.Get(jobID)
	if !ok {
		return ErrJobNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != domain.JobStatusRunning {
		return ErrJobNotFound
	}

	if err := a.proc.Terminate(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return ErrJobNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to signal job %s: %w", jobID, err)
	}

	a.transition(domain.JobStatusCanceled)
	m.persist(a.ID, domain.Finish(domain.JobStatusCanceled, nil))
	m.publisher.Publish(events.Event{
		Type:     events.JobCanceled,
		JobID:    a.ID,
		Strategy: string(a.Kind),
		Status:   string(domain.JobStatusCanceled),
	})
	m.release(a, domain.JobStatusCanceled)
	m.logger.Info("job canceled", "job_id", a.ID)

	return nil
}

// release removes a finished job from the registry. Caller holds a.mu.
func (m *Manager) release(a *ActiveJob, status domain.JobStatus) {
	if m.registry.Remove(a.ID) {
		m.metrics.activeDelta(-1)
	}
	m.metrics.jobFinished(a.Kind, string(status))
	m.archive(a.ID)
}

// IsActive reports whether jobID has a live process.
func (m *Manager) IsActive(jobID string) bool {
	_, ok := m.registry.Get(jobID)
	return ok
}

// ActiveJobs returns the ids of running jobs in sorted order.
func (m *Manager) ActiveJobs() []string {
	return m.registry.ActiveIDs()
}

// ActiveDetails describes running jobs ordered by start time.
func (m *Manager) ActiveDetails() []ActiveInfo {
	jobs := m.registry.Snapshot()
	out := make([]ActiveInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, ActiveInfo{ID: j.ID, Strategy: j.Kind, Command: j.Command, StartedAt: j.StartedAt})
	}
	return out
}

// Shutdown refuses new jobs, cancels every running job and waits for their
// pipelines to drain or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	m.inflight.Wait()

	var g errgroup.Group
	for _, id := range m.registry.ActiveIDs() {
		g.Go(func() error {
			err := m.Cancel(ctx, id)
			if errors.Is(err, ErrJobNotFound) {
				return nil
			}
			return err
		})
	}
	cancelErr := g.Wait()

	done := make(chan struct{})
	go func() {
		m.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return cancelErr
	case <-ctx.Done():
		return errors.Join(cancelErr, fmt.Errorf("waiting for jobs to drain: %w", ctx.Err()))
	}
}

// Recover marks jobs left running by a previous server process as failed.
// It returns the number of jobs recovered.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	jobs, err := m.store.FindRunning(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range jobs {
		if m.IsActive(job.ID) {
			continue
		}

		last, err := m.lastSeq(ctx, job.ID)
		if err != nil {
			return recovered, err
		}
		entry := domain.LogEntry{
			JobID:     job.ID,
			Seq:       last + 1,
			Timestamp: time.Now().UTC(),
			Stream:    domain.StreamSystem,
			Data:      "Process error: job orphaned by server restart",
		}
		if err := m.store.AppendLogs(ctx, job.ID, []domain.LogEntry{entry}); err != nil {
			m.logger.Warn("failed to append recovery log", "job_id", job.ID, "error", err)
		}
		if err := m.store.Update(ctx, job.ID, domain.Finish(domain.JobStatusFailed, nil)); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				continue
			}
			return recovered, err
		}
		recovered++
		m.logger.Info("recovered orphaned job", "job_id", job.ID)
	}

	return recovered, nil
}

func (m *Manager) lastSeq(ctx context.Context, jobID string) (int64, error) {
	var last int64
	for {
		entries, err := m.store.GetLogs(ctx, jobID, last, repository.MaxLogLimit)
		if err != nil {
			return 0, err
		}
		if len(entries) == 0 {
			return last, nil
		}
		last = entries[len(entries)-1].Seq
		if len(entries) < repository.MaxLogLimit {
			return last, nil
		}
	}
}

func (m *Manager) persist(jobID string, update domain.JobUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := m.store.Update(ctx, jobID, update); err != nil {
		m.logger.Error("failed to persist job status", "job_id", jobID, "status", update.Status, "error", err)
	}
}

// appendLog stores one entry. Failures are logged and never affect the job.
func (m *Manager) appendLog(e domain.LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := m.store.AppendLogs(ctx, e.JobID, []domain.LogEntry{e}); err != nil {
		m.logger.Warn("failed to append job log", "job_id", e.JobID, "seq", e.Seq, "error", err)
	}
}

func (m *Manager) archive(jobID string) {
	if m.archiver == nil {
		return
	}
	m.running.Add(1)
	go func() {
		defer m.running.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := m.archiver.Archive(ctx, jobID); err != nil {
			m.logger.Warn("failed to archive job transcript", "job_id", jobID, "error", err)
		}
	}()
}
