package execution

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCommand        = errors.New("command must be a non-empty string")
	ErrUnknownStrategy     = errors.New("unknown strategy type")
	ErrMissingHost         = errors.New("ssh strategy requires a host alias or explicit host")
	ErrJobNotFound         = errors.New("job not found or already finished")
	ErrUnsupportedPlatform = errors.New("terminal spawn is not supported on this platform")
	ErrNoTerminal          = errors.New("no supported terminal emulator found")
	ErrShuttingDown        = errors.New("execution manager is shutting down")
)

// StartError means the operating system refused to start the process.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// RejectedError is returned by Execute when a strategy refused a request
// after the job record was created. The job is already marked failed.
type RejectedError struct {
	JobID string
	Err   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("job %s rejected: %v", e.JobID, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
