package execution

import (
	"errors"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/events"
)

const chunkSize = 32 * 1024

// run pumps both output streams until they close, then applies the
// completion transition.
func (m *Manager) run(a *ActiveJob) {
	defer m.running.Done()

	var pumps sync.WaitGroup
	pumps.Add(2)
	go m.pump(a, a.proc.Stdout(), domain.StreamStdout, &pumps)
	go m.pump(a, a.proc.Stderr(), domain.StreamStderr, &pumps)
	pumps.Wait()

	code, err := a.proc.Result()
	m.complete(a, code, err)
}

// pump forwards r as log chunks until EOF. A multibyte rune cut by a read
// is carried into the next chunk so every chunk is valid UTF-8 when the
// output is.
func (m *Manager) pump(a *ActiveJob, r io.ReadCloser, stream domain.Stream, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()

	buf := make([]byte, chunkSize+utf8.UTFMax)
	carry := 0
	for {
		n, err := r.Read(buf[carry : carry+chunkSize])
		if n > 0 {
			complete, rest := splitPartialRune(buf[:carry+n])
			if len(complete) > 0 {
				m.appendChunk(a, stream, string(complete))
			}
			carry = copy(buf, rest)
		}
		if err != nil {
			if carry > 0 {
				m.appendChunk(a, stream, string(buf[:carry]))
			}
			if !errors.Is(err, io.EOF) {
				m.logger.Warn("output stream error", "job_id", a.ID, "stream", stream, "error", err)
			}
			return
		}
	}
}

// splitPartialRune splits off a trailing rune whose encoding is not yet
// complete. Invalid bytes are never held back.
func splitPartialRune(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], b[i:]
	}
	return b, nil
}

// appendChunk records and publishes one chunk. Chunks arriving after the
// job left the running state are dropped.
func (m *Manager) appendChunk(a *ActiveJob, stream domain.Stream, data string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status.IsTerminal() {
		return
	}

	entry := a.nextEntry(stream, data)
	m.appendLog(entry)
	m.publisher.Publish(events.Event{
		Type:      events.JobLog,
		JobID:     a.ID,
		Stream:    string(stream),
		Data:      data,
		Seq:       entry.Seq,
		Timestamp: entry.Timestamp,
	})
	m.metrics.output(string(stream), len(data))
}

// complete applies the outcome of the process. It is a no-op when the job
// already reached a terminal state through cancellation.
func (m *Manager) complete(a *ActiveJob, code int, waitErr error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if waitErr != nil {
		if !a.transition(domain.JobStatusFailed) {
			return
		}
		msg := "Process error: " + waitErr.Error()
		m.appendLog(a.nextEntry(domain.StreamSystem, msg))
		m.persist(a.ID, domain.Finish(domain.JobStatusFailed, nil))
		m.publisher.Publish(events.Event{
			Type:     events.JobError,
			JobID:    a.ID,
			Strategy: string(a.Kind),
			Status:   string(domain.JobStatusFailed),
			Error:    msg,
		})
		m.release(a, domain.JobStatusFailed)
		m.logger.Warn("job process error", "job_id", a.ID, "error", waitErr)
		return
	}

	status := domain.JobStatusSuccess
	if code != 0 {
		status = domain.JobStatusFailed
	}
	if !a.transition(status) {
		return
	}

	exitCode := code
	m.persist(a.ID, domain.Finish(status, &exitCode))
	m.publisher.Publish(events.Event{
		Type:     events.JobDone,
		JobID:    a.ID,
		Strategy: string(a.Kind),
		Status:   string(status),
		ExitCode: &exitCode,
	})
	m.release(a, status)
	m.logger.Info("job finished", "job_id", a.ID, "status", status, "exit_code", code)
}
