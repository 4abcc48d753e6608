package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/martijn/vmorch/internal/api/dto"
	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/repository"
	"github.com/martijn/vmorch/internal/core/service"
	"github.com/martijn/vmorch/internal/events"
	"github.com/martijn/vmorch/internal/execution"
	"github.com/martijn/vmorch/internal/infrastructure/sqlstore"
	"github.com/martijn/vmorch/internal/presets"
	"github.com/martijn/vmorch/internal/sshconfig"
)

const testSSHConfig = `
Host vm1
    HostName 127.0.0.1
    User ops
`

const testPresets = `
commands:
  hello:
    type: stream
    cmd: echo preset-hello
    description: Say hello
  deploy:
    type: ssh
    cmd: ./deploy.sh
    host_alias: vm1
`

// testEnv holds all test dependencies
type testEnv struct {
	db          *sqlstore.DB
	repo        repository.JobRepository
	broadcaster *events.Broadcaster
	manager     *execution.Manager
	router      *gin.Engine
}

// setupTestEnv creates a test environment with an in-memory SQLite store and
// a real execution manager.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Use in-memory SQLite database
	db, err := sqlstore.New(sqlstore.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	repo := sqlstore.NewJobRepository(db)

	dir := t.TempDir()
	sshPath := filepath.Join(dir, "ssh_config")
	if err := os.WriteFile(sshPath, []byte(testSSHConfig), 0o600); err != nil {
		t.Fatalf("failed to write ssh config: %v", err)
	}
	resolver := sshconfig.NewResolver(sshPath, 5, logger)

	catalog, err := presets.Parse([]byte(testPresets))
	if err != nil {
		t.Fatalf("failed to parse presets: %v", err)
	}

	broadcaster := events.NewBroadcaster(64, logger, nil)
	manager, err := execution.NewManager(execution.Options{
		Store:     repo,
		Publisher: broadcaster,
		Strategies: []execution.Strategy{
			execution.NewLocalStrategy(""),
			// An unreachable binary keeps tests from opening real connections.
			execution.NewSSHStrategy(resolver, filepath.Join(dir, "no-ssh"), 1),
			execution.NewTerminalStrategy("sh", ""),
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	jobService := service.NewJobService(repo)

	// Create handlers
	jobHandler := NewJobHandler(manager, jobService, catalog, 0)
	eventHandler := NewEventHandler(broadcaster, jobService)
	wsHandler := NewWSHandler(manager, broadcaster, catalog, nil, logger)
	hostHandler := NewHostHandler(resolver)
	commandHandler := NewCommandHandler(catalog)

	// Setup gin router in test mode
	gin.SetMode(gin.TestMode)
	router := gin.New()

	// Register routes without auth middleware
	router.POST("/jobs", jobHandler.Execute)
	router.GET("/jobs", jobHandler.ListJobs)
	router.GET("/jobs/active", jobHandler.ListActive)
	router.GET("/jobs/:id", jobHandler.GetJob)
	router.GET("/jobs/:id/logs", jobHandler.GetLogs)
	router.GET("/jobs/:id/events", eventHandler.StreamJob)
	router.POST("/jobs/:id/cancel", jobHandler.Cancel)
	router.GET("/targets/:ref/jobs", jobHandler.ListTargetJobs)
	router.GET("/hosts", hostHandler.ListHosts)
	router.POST("/hosts/:alias/test", hostHandler.TestHost)
	router.GET("/commands", commandHandler.ListCommands)
	router.GET("/ws/jobs", wsHandler.Serve)

	env := &testEnv{
		db:          db,
		repo:        repo,
		broadcaster: broadcaster,
		manager:     manager,
		router:      router,
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
		db.Close()
	})

	return env
}

// seedTestData populates the store with finished jobs for listing tests
func (env *testEnv) seedTestData(t *testing.T) {
	t.Helper()

	ctx := context.Background()

	// Base time: Nov 1, 2025
	baseTime := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)

	jobs := []struct {
		id        string
		command   string
		strategy  string
		targetRef *string
		status    domain.JobStatus
		exitCode  *int
		startedAt time.Time
	}{
		{"job-001", "uptime", "stream", ptr("vm-1"), domain.JobStatusSuccess, ptr(0), baseTime},
		{"job-002", "df -h", "ssh", ptr("vm-1"), domain.JobStatusSuccess, ptr(0), baseTime.Add(24 * time.Hour)},
		{"job-003", "apt upgrade", "ssh", ptr("vm-2"), domain.JobStatusFailed, ptr(100), baseTime.Add(2 * 24 * time.Hour)},
		{"job-004", "htop", "terminal", nil, domain.JobStatusSpawned, nil, baseTime.Add(3 * 24 * time.Hour)},
		{"job-005", "tail -f log", "stream", ptr("vm-1"), domain.JobStatusCanceled, nil, baseTime.Add(4 * 24 * time.Hour)},
		{"job-006", "make test", "stream", nil, domain.JobStatusSuccess, ptr(0), baseTime.Add(5 * 24 * time.Hour)},
	}

	for _, j := range jobs {
		job := domain.NewJob(j.id, j.command, j.strategy, j.targetRef)
		job.StartedAt = j.startedAt
		if err := env.repo.Insert(ctx, job); err != nil {
			t.Fatalf("failed to seed job %s: %v", j.id, err)
		}

		update := domain.JobUpdate{Status: j.status}
		if j.status.IsFinished() {
			finished := j.startedAt.Add(time.Minute)
			update.FinishedAt = &finished
			update.ExitCode = j.exitCode
		}
		if err := env.repo.Update(ctx, j.id, update); err != nil {
			t.Fatalf("failed to finish job %s: %v", j.id, err)
		}
	}

	logs := []domain.LogEntry{
		{JobID: "job-001", Seq: 1, Timestamp: baseTime, Stream: domain.StreamStdout, Data: "up 3 days\n"},
		{JobID: "job-001", Seq: 2, Timestamp: baseTime, Stream: domain.StreamStderr, Data: "warning\n"},
		{JobID: "job-001", Seq: 3, Timestamp: baseTime, Stream: domain.StreamSystem, Data: "Process exited with code 0"},
	}
	if err := env.repo.AppendLogs(ctx, "job-001", logs); err != nil {
		t.Fatalf("failed to seed logs: %v", err)
	}
}

// makeRequest performs a request and returns the response
func (env *testEnv) makeRequest(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// waitFinished polls until the job has left the running state.
func (env *testEnv) waitFinished(t *testing.T, id string) *domain.Job {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := env.repo.GetJob(context.Background(), id)
		if err == nil && job.Status != domain.JobStatusRunning && !env.manager.IsActive(id) {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

// decode parses the response body into v
func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var resp T
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v\nBody: %s", err, w.Body.String())
	}
	return resp
}

// parseErrorResponse parses the response body into ErrorResponse
func parseErrorResponse(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	return decode[dto.ErrorResponse](t, w)
}

// ptr is a helper to create a pointer to a value
func ptr[T any](v T) *T {
	return &v
}
