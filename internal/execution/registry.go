package execution

import (
	"sort"
	"sync"
	"time"

	"github.com/martijn/vmorch/internal/core/domain"
)

// ActiveJob is the in-memory handle of a job with a live process.
type ActiveJob struct {
	ID        string
	Kind      Kind
	Command   string
	StartedAt time.Time

	proc *Process

	// mu serializes transitions and log sequencing for the job.
	mu     sync.Mutex
	status domain.JobStatus
	seq    int64
	lastTS time.Time
}

func newActiveJob(job *domain.Job, kind Kind, proc *Process) *ActiveJob {
	return &ActiveJob{
		ID:        job.ID,
		Kind:      kind,
		Command:   job.Command,
		StartedAt: job.StartedAt,
		proc:      proc,
		status:    domain.JobStatusRunning,
	}
}

// Status returns the current in-memory status.
func (a *ActiveJob) Status() domain.JobStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// transition moves the job to next if allowed. Caller holds a.mu.
func (a *ActiveJob) transition(next domain.JobStatus) bool {
	if !a.status.CanTransition(next) {
		return false
	}
	a.status = next
	return true
}

// nextEntry assigns the sequence number and a timestamp that never goes
// backwards within the job. Caller holds a.mu.
func (a *ActiveJob) nextEntry(stream domain.Stream, data string) domain.LogEntry {
	ts := time.Now().UTC()
	if ts.Before(a.lastTS) {
		ts = a.lastTS
	}
	a.lastTS = ts
	a.seq++
	return domain.LogEntry{JobID: a.ID, Seq: a.seq, Timestamp: ts, Stream: stream, Data: data}
}

// Registry maps job ids to live process handles. A job absent from the
// registry has finished.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*ActiveJob
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*ActiveJob)}
}

func (r *Registry) Put(job *ActiveJob) {
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*ActiveJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	delete(r.jobs, id)
	return ok
}

// ActiveIDs returns the registered job ids in sorted order.
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Snapshot returns the registered jobs ordered by start time.
func (r *Registry) Snapshot() []*ActiveJob {
	r.mu.RLock()
	jobs := make([]*ActiveJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].StartedAt.Equal(jobs[k].StartedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].StartedAt.Before(jobs[k].StartedAt)
	})
	return jobs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
