//go:build !windows

package execution

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/events"
)

type testEnv struct {
	store    *memStore
	events   *eventLog
	manager  *Manager
	sshCalls *cmdRecorder
	termCmds *cmdRecorder
}

func setupManager(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    newMemStore(),
		events:   &eventLog{},
		sshCalls: &cmdRecorder{},
		termCmds: &cmdRecorder{},
	}

	ssh := NewSSHStrategy(fakeResolver{"vm1": {Host: "127.0.0.1", User: "ops"}}, "", 0)
	ssh.runCmd = env.sshCalls.makeCmd

	term := newTestTerminal("linux", "xterm")
	term.runCmd = env.termCmds.makeCmd

	m, err := NewManager(Options{
		Store:      env.store,
		Publisher:  env.events,
		Strategies: []Strategy{NewLocalStrategy(""), ssh, term},
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	env.manager = m

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	})

	return env
}

func (env *testEnv) waitDone(t *testing.T, id string) *domain.Job {
	t.Helper()
	waitFor(t, "job "+id+" to finish", func() bool {
		return !env.manager.IsActive(id) && env.store.job(t, id).Status != domain.JobStatusRunning
	})
	return env.store.job(t, id)
}

func assertFinishedAt(t *testing.T, job *domain.Job) {
	t.Helper()
	if job.Status.IsFinished() != (job.FinishedAt != nil) {
		t.Errorf("status %s with finishedAt %v", job.Status, job.FinishedAt)
	}
}

func TestNewManagerRequiresAllStrategies(t *testing.T) {
	_, err := NewManager(Options{
		Store:      newMemStore(),
		Publisher:  &eventLog{},
		Strategies: []Strategy{NewLocalStrategy(""), NewTerminalStrategy("", "")},
	})
	if err == nil || !strings.Contains(err.Error(), "missing strategy: ssh") {
		t.Fatalf("expected missing strategy error, got %v", err)
	}

	_, err = NewManager(Options{
		Store:      newMemStore(),
		Publisher:  &eventLog{},
		Strategies: []Strategy{NewLocalStrategy(""), NewLocalStrategy(""), NewSSHStrategy(nil, "", 0), NewTerminalStrategy("", "")},
	})
	if err == nil {
		t.Fatal("expected duplicate strategy error")
	}
}

func TestExecuteEchoSucceeds(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "echo hello", Kind: KindStream, TargetRef: "vm-3"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	job := env.waitDone(t, id)
	if job.Status != domain.JobStatusSuccess {
		t.Fatalf("expected success, got %s", job.Status)
	}
	if job.ExitCode == nil || *job.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", job.ExitCode)
	}
	if job.TargetRef == nil || *job.TargetRef != "vm-3" {
		t.Errorf("expected target ref vm-3, got %v", job.TargetRef)
	}
	assertFinishedAt(t, job)

	entries := env.store.entries(id)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d: %+v", len(entries), entries)
	}
	if entries[0].Stream != domain.StreamStdout || entries[0].Data != "hello\n" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}

	evs := env.events.forJob(id)
	if len(evs) != 3 {
		t.Fatalf("expected started, log, done events, got %+v", evs)
	}
	if evs[0].Type != events.JobStarted || evs[1].Type != events.JobLog || evs[2].Type != events.JobDone {
		t.Errorf("unexpected event order: %s %s %s", evs[0].Type, evs[1].Type, evs[2].Type)
	}
	if evs[2].Status != "success" || evs[2].ExitCode == nil || *evs[2].ExitCode != 0 {
		t.Errorf("unexpected done event: %+v", evs[2])
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "sh -c 'exit 3'", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	job := env.waitDone(t, id)
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ExitCode == nil || *job.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %v", job.ExitCode)
	}
	assertFinishedAt(t, job)
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	env := setupManager(t)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty command", Request{Command: "", Kind: KindStream}, ErrEmptyCommand},
		{"blank command", Request{Command: "   ", Kind: KindStream}, ErrEmptyCommand},
		{"unknown strategy", Request{Command: "ls", Kind: "docker"}, ErrUnknownStrategy},
		{"ssh without host", Request{Command: "ls", Kind: KindSSH}, ErrMissingHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := env.manager.Execute(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if id != "" {
				t.Errorf("expected no job id, got %s", id)
			}
		})
	}

	if n := env.store.jobCount(); n != 0 {
		t.Errorf("expected no stored jobs, got %d", n)
	}
}

func TestExecuteMissingBinaryFailsJob(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "nonexistent-binary-xyz --flag", Kind: KindStream})
	if err != nil {
		t.Fatalf("expected spawn failure to be recorded, got error %v", err)
	}
	if id == "" {
		t.Fatal("expected a job id")
	}

	job := env.store.job(t, id)
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ExitCode != nil {
		t.Errorf("expected no exit code, got %d", *job.ExitCode)
	}
	assertFinishedAt(t, job)

	entries := env.store.entries(id)
	if len(entries) != 1 || entries[0].Stream != domain.StreamSystem {
		t.Fatalf("expected one system entry, got %+v", entries)
	}
	if !strings.Contains(entries[0].Data, "nonexistent-binary-xyz") {
		t.Errorf("system entry does not describe the error: %q", entries[0].Data)
	}

	if env.manager.IsActive(id) {
		t.Error("failed job must not be registered")
	}
	if n := env.events.count(id, events.JobError); n != 1 {
		t.Errorf("expected 1 job-error event, got %d", n)
	}
}

func TestExecuteUnknownAliasIsRejected(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "uptime", Kind: KindSSH, HostAlias: "unknown-alias"})

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.JobID != id || id == "" {
		t.Errorf("rejected job id %q, returned id %q", rejected.JobID, id)
	}
	if !errors.Is(err, errUnknownAlias) {
		t.Errorf("expected resolver cause, got %v", err)
	}
	if len(env.sshCalls.calls) != 0 {
		t.Errorf("expected no ssh process, got %+v", env.sshCalls.calls)
	}

	job := env.store.job(t, id)
	if job.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	assertFinishedAt(t, job)

	entries := env.store.entries(id)
	if len(entries) != 1 || entries[0].Stream != domain.StreamSystem {
		t.Errorf("expected one system entry, got %+v", entries)
	}
}

func TestExecuteSSHResolvedAlias(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "docker ps", Kind: KindSSH, HostAlias: "vm1"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	job := env.waitDone(t, id)
	if job.Status != domain.JobStatusSuccess {
		t.Errorf("expected success, got %s", job.Status)
	}
	if job.Strategy != "ssh" {
		t.Errorf("expected ssh strategy, got %s", job.Strategy)
	}

	args := env.sshCalls.calls[0].args
	if args[len(args)-2] != "ops@127.0.0.1" || args[len(args)-1] != "docker ps" {
		t.Errorf("unexpected ssh args: %q", args)
	}
}

func TestExecuteTerminalIsSpawned(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "htop", Kind: KindTerminal})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	job := env.store.job(t, id)
	if job.Status != domain.JobStatusSpawned {
		t.Fatalf("expected spawned, got %s", job.Status)
	}
	if job.FinishedAt != nil || job.ExitCode != nil {
		t.Errorf("spawned job must not have finish fields: %v %v", job.FinishedAt, job.ExitCode)
	}
	if env.manager.IsActive(id) {
		t.Error("terminal job must not be registered")
	}
	if err := env.manager.Cancel(context.Background(), id); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if len(env.termCmds.calls) != 1 || env.termCmds.calls[0].name != "xterm" {
		t.Errorf("unexpected launcher calls: %+v", env.termCmds.calls)
	}

	evs := env.events.forJob(id)
	if len(evs) != 1 || evs[0].Type != events.JobStarted || evs[0].Status != "spawned" {
		t.Errorf("unexpected events: %+v", evs)
	}
}

func TestExecuteQuotedArguments(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{
		Command: `printf "%s|" "a b" 'c  d' e`,
		Kind:    KindStream,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	job := env.waitDone(t, id)
	if job.Status != domain.JobStatusSuccess {
		t.Fatalf("expected success, got %s", job.Status)
	}

	var out strings.Builder
	for _, e := range env.store.entries(id) {
		out.WriteString(e.Data)
	}
	if out.String() != "a b|c  d|e|" {
		t.Errorf("unexpected argv split: %q", out.String())
	}
}

func TestExecuteWorkingDir(t *testing.T) {
	env := setupManager(t)
	dir := t.TempDir()

	id, err := env.manager.Execute(context.Background(), Request{Command: "pwd", Kind: KindStream, WorkingDir: dir})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	env.waitDone(t, id)

	entries := env.store.entries(id)
	if len(entries) != 1 || strings.TrimSpace(entries[0].Data) != dir {
		t.Errorf("expected working dir %s, got %+v", dir, entries)
	}
}

func TestLogEntriesMatchPublishedChunks(t *testing.T) {
	env := setupManager(t)

	script := `for i in 1 2 3 4 5; do echo out$i; echo err$i >&2; done`
	id, err := env.manager.Execute(context.Background(), Request{Command: "sh -c '" + script + "'", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	env.waitDone(t, id)

	entries := env.store.entries(id)
	if n := env.events.count(id, events.JobLog); n != len(entries) {
		t.Fatalf("published %d chunks but stored %d", n, len(entries))
	}

	var stdout, stderr strings.Builder
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
		if i > 0 && e.Timestamp.Before(entries[i-1].Timestamp) {
			t.Errorf("entry %d timestamp went backwards", i)
		}
		switch e.Stream {
		case domain.StreamStdout:
			stdout.WriteString(e.Data)
		case domain.StreamStderr:
			stderr.WriteString(e.Data)
		}
	}
	if stdout.String() != "out1\nout2\nout3\nout4\nout5\n" {
		t.Errorf("unexpected stdout %q", stdout.String())
	}
	if stderr.String() != "err1\nerr2\nerr3\nerr4\nerr5\n" {
		t.Errorf("unexpected stderr %q", stderr.String())
	}

	evs := env.events.forJob(id)
	if last := evs[len(evs)-1]; last.Type != events.JobDone {
		t.Errorf("expected job-done last, got %s", last.Type)
	}
}

// streamOutput checks the transcript invariants of a finished job and
// returns its stdout.
func streamOutput(t *testing.T, env *testEnv, id string) string {
	t.Helper()

	entries := env.store.entries(id)
	if n := env.events.count(id, events.JobLog); n != len(entries) {
		t.Fatalf("published %d chunks but stored %d", n, len(entries))
	}

	var stdout strings.Builder
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Fatalf("entry %d has seq %d", i, e.Seq)
		}
		if !utf8.ValidString(e.Data) {
			t.Errorf("entry %d (%d bytes) is not valid UTF-8", e.Seq, len(e.Data))
		}
		if e.Stream == domain.StreamStdout {
			stdout.WriteString(e.Data)
		}
	}
	return stdout.String()
}

func TestSlowStoreKeepsEveryByte(t *testing.T) {
	if testing.Short() {
		t.Skip("slow store drains for several seconds")
	}
	env := setupManager(t)
	env.store.setAppendDelay(2 * time.Second)

	// More than a pipe buffer, so the child exits long before the last
	// chunk is stored.
	const lines = 20000
	id, err := env.manager.Execute(context.Background(), Request{Command: "seq 1 " + strconv.Itoa(lines), Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitForWithin(t, 2*time.Minute, "slow job to finish", func() bool {
		return !env.manager.IsActive(id) && env.store.job(t, id).Status != domain.JobStatusRunning
	})
	job := env.store.job(t, id)
	if job.Status != domain.JobStatusSuccess || job.ExitCode == nil || *job.ExitCode != 0 {
		t.Fatalf("expected success with exit 0, got %s %v", job.Status, job.ExitCode)
	}

	var want strings.Builder
	for i := 1; i <= lines; i++ {
		want.WriteString(strconv.Itoa(i))
		want.WriteByte('\n')
	}
	got := streamOutput(t, env, id)
	if got != want.String() {
		t.Errorf("stored %d bytes (%d lines), want %d bytes (%d lines)",
			len(got), strings.Count(got, "\n"), want.Len(), lines)
	}
}

func TestMultibyteRuneAcrossReadBoundary(t *testing.T) {
	env := setupManager(t)

	content := strings.Repeat("a", chunkSize-1) + "é" + strings.Repeat("b", 8000)
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	id, err := env.manager.Execute(context.Background(), Request{Command: "cat '" + path + "'", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	env.waitDone(t, id)

	if got := streamOutput(t, env, id); got != content {
		t.Errorf("stored %d bytes, want %d", len(got), len(content))
	}
	for _, e := range env.events.forJob(id) {
		if e.Type == events.JobLog && !utf8.ValidString(e.Data) {
			t.Errorf("published chunk %d is not valid UTF-8", e.Seq)
		}
	}
}

func TestLogAppendFailureDoesNotFailJob(t *testing.T) {
	env := setupManager(t)
	env.store.setAppendErr(errors.New("database is locked"))

	id, err := env.manager.Execute(context.Background(), Request{Command: "echo still-running", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	job := env.waitDone(t, id)
	if job.Status != domain.JobStatusSuccess {
		t.Fatalf("expected success despite storage errors, got %s", job.Status)
	}
	if n := env.events.count(id, events.JobLog); n != 1 {
		t.Errorf("expected output to still be published, got %d events", n)
	}
}

func TestCancelRunningJob(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "sleep 30", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	start := time.Now()
	if err := env.manager.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("cancel took %s", time.Since(start))
	}

	// The record is final as soon as Cancel returns
	job := env.store.job(t, id)
	if job.Status != domain.JobStatusCanceled {
		t.Fatalf("expected canceled, got %s", job.Status)
	}
	if job.FinishedAt == nil {
		t.Error("expected finishedAt to be set")
	}
	if env.manager.IsActive(id) {
		t.Error("canceled job still registered")
	}

	// The process exit that follows must not change the outcome
	time.Sleep(200 * time.Millisecond)

	job = env.store.job(t, id)
	if job.Status != domain.JobStatusCanceled {
		t.Errorf("status changed after cancel: %s", job.Status)
	}
	if env.events.count(id, events.JobDone) != 0 || env.events.count(id, events.JobError) != 0 {
		t.Error("completion event published after cancel")
	}
	if n := env.events.count(id, events.JobCanceled); n != 1 {
		t.Errorf("expected 1 job-canceled event, got %d", n)
	}
}

func TestCancelTwiceConcurrently(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "sleep 30", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.manager.Cancel(context.Background(), id)
		}(i)
	}
	wg.Wait()

	succeeded, notFound := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrJobNotFound):
			notFound++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || notFound != 1 {
		t.Errorf("expected one success and one not-found, got %d and %d", succeeded, notFound)
	}
	if n := env.events.count(id, events.JobCanceled); n != 1 {
		t.Errorf("expected 1 job-canceled event, got %d", n)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "echo done", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	before := env.waitDone(t, id)

	if err := env.manager.Cancel(context.Background(), id); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := env.manager.Cancel(context.Background(), "never-existed"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	after := env.store.job(t, id)
	if after.Status != before.Status || !after.FinishedAt.Equal(*before.FinishedAt) {
		t.Errorf("finished job was modified: %+v", after)
	}
}

func TestCallerAllocatedID(t *testing.T) {
	env := setupManager(t)

	want := env.manager.NewJobID()
	id, err := env.manager.Execute(context.Background(), Request{ID: want, Command: "true", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if id != want {
		t.Errorf("expected id %s, got %s", want, id)
	}
	env.waitDone(t, id)

	if _, err := env.manager.Execute(context.Background(), Request{ID: want, Command: "true", Kind: KindStream}); err == nil {
		t.Error("expected duplicate id to be rejected by the store")
	}
}

func TestActiveDetails(t *testing.T) {
	env := setupManager(t)

	id, err := env.manager.Execute(context.Background(), Request{Command: "sleep 30", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	details := env.manager.ActiveDetails()
	if len(details) != 1 || details[0].ID != id || details[0].Command != "sleep 30" || details[0].Strategy != KindStream {
		t.Errorf("unexpected details: %+v", details)
	}
	if ids := env.manager.ActiveJobs(); len(ids) != 1 || ids[0] != id {
		t.Errorf("unexpected active ids: %v", ids)
	}
}

func TestShutdownCancelsAllJobs(t *testing.T) {
	env := setupManager(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := env.manager.Execute(context.Background(), Request{Command: "sleep 30", Kind: KindStream})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		ids = append(ids, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := env.manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	for _, id := range ids {
		job := env.store.job(t, id)
		if job.Status != domain.JobStatusCanceled {
			t.Errorf("job %s: expected canceled, got %s", id, job.Status)
		}
	}
	if n := len(env.manager.ActiveJobs()); n != 0 {
		t.Errorf("expected no active jobs, got %d", n)
	}

	if _, err := env.manager.Execute(context.Background(), Request{Command: "true", Kind: KindStream}); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestRecoverOrphanedJobs(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()

	orphan := domain.NewJob("orphan", "sleep 100", "stream", nil)
	if err := env.store.Insert(ctx, orphan); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := env.store.AppendLogs(ctx, "orphan", []domain.LogEntry{
		{JobID: "orphan", Seq: 1, Timestamp: time.Now(), Stream: domain.StreamStdout, Data: "partial"},
	}); err != nil {
		t.Fatalf("AppendLogs failed: %v", err)
	}

	live, err := env.manager.Execute(ctx, Request{Command: "sleep 30", Kind: KindStream})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	n, err := env.manager.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recovered job, got %d", n)
	}

	job := env.store.job(t, "orphan")
	if job.Status != domain.JobStatusFailed {
		t.Errorf("expected orphan to be failed, got %s", job.Status)
	}
	assertFinishedAt(t, job)

	entries := env.store.entries("orphan")
	if len(entries) != 2 || entries[1].Stream != domain.StreamSystem || entries[1].Seq != 2 {
		t.Errorf("unexpected orphan transcript: %+v", entries)
	}

	if env.store.job(t, live).Status != domain.JobStatusRunning {
		t.Error("live job was recovered")
	}
}

func TestProcessExitStatus(t *testing.T) {
	code, err := exitStatus(nil)
	if code != 0 || err != nil {
		t.Errorf("nil error mapped to %d, %v", code, err)
	}

	exitErr := exec.Command("sh", "-c", "exit 7").Run()
	code, err = exitStatus(exitErr)
	if code != 7 || err != nil {
		t.Errorf("exit 7 mapped to %d, %v", code, err)
	}

	code, err = exitStatus(errors.New("wait: i/o error"))
	if code != -1 || err == nil {
		t.Errorf("process error mapped to %d, %v", code, err)
	}
}
