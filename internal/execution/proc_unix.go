//go:build !windows

package execution

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// terminate sends SIGTERM to the process group led by p. Every process
// started here is a group leader, either through setProcessGroup or Setsid.
func terminate(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGTERM)
	if errors.Is(err, syscall.ESRCH) {
		return p.Signal(syscall.SIGTERM)
	}
	return err
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// setDetached starts the process in its own session so it outlives the server.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
