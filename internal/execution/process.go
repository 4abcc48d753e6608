package execution

import (
	"errors"
	"io"
	"os"
	"os/exec"
)

// CmdFunc is the signature for creating an *exec.Cmd. It matches exec.Command.
type CmdFunc func(name string, args ...string) *exec.Cmd

// Process is a started child process.
// Stdout and Stderr are nil for detached processes.
type Process struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	detached bool

	done     chan struct{}
	exitCode int
	err      error
}

// startProcess starts cmd. An attached process writes straight into OS
// pipes: Wait neither copies nor closes them, so readers get every byte until
// the last holder of a write end exits. Attached processes lead their own
// process group and Terminate signals the whole group.
func startProcess(cmd *exec.Cmd, detached bool) (*Process, error) {
	p := &Process{
		cmd:      cmd,
		detached: detached,
		done:     make(chan struct{}),
	}

	var childEnds []*os.File
	if detached {
		setDetached(cmd)
	} else {
		outR, outW, err := os.Pipe()
		if err != nil {
			return nil, &StartError{Path: cmd.Path, Err: err}
		}
		errR, errW, err := os.Pipe()
		if err != nil {
			outR.Close()
			outW.Close()
			return nil, &StartError{Path: cmd.Path, Err: err}
		}
		cmd.Stdout = outW
		cmd.Stderr = errW
		p.stdout, p.stderr = outR, errR
		childEnds = []*os.File{outW, errW}
		setProcessGroup(cmd)
	}

	err := cmd.Start()
	// The child holds its own copies now.
	for _, f := range childEnds {
		f.Close()
	}
	if err != nil {
		if p.stdout != nil {
			p.stdout.Close()
			p.stderr.Close()
		}
		return nil, &StartError{Path: cmd.Path, Err: err}
	}

	go func() {
		p.exitCode, p.err = exitStatus(cmd.Wait())
		close(p.done)
	}()

	return p, nil
}

// exitStatus maps the result of Wait to an exit code and a process-level
// error. A non-zero exit is not an error; a signal death reports -1.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Stdout and Stderr are the read ends of the output pipes. The reader owns
// them and closes them when done.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }
func (p *Process) Stderr() io.ReadCloser { return p.stderr }

// Detached reports whether the process is not observed after start.
func (p *Process) Detached() bool { return p.detached }

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Result returns the exit code and process-level error. Valid after Done.
func (p *Process) Result() (int, error) {
	<-p.done
	return p.exitCode, p.err
}

func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Terminate asks the process to exit. It does not escalate to a kill.
// os.ErrProcessDone is returned if the process already exited.
func (p *Process) Terminate() error {
	select {
	case <-p.done:
		return os.ErrProcessDone
	default:
	}
	return terminate(p.cmd.Process)
}
