package domain

import "time"

type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamSystem carries diagnostics produced by the server, not the child process.
	StreamSystem Stream = "system"
)

type LogEntry struct {
	JobID     string    `db:"job_id"`
	Seq       int64     `db:"seq"`
	Timestamp time.Time `db:"ts"`
	Stream    Stream    `db:"stream"`
	Data      string    `db:"data"`
}
