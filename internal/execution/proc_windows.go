//go:build windows

package execution

import (
	"os"
	"os/exec"
	"syscall"
)

// Windows has no SIGTERM; Kill is the only signal the runtime can deliver.
func terminate(p *os.Process) error {
	return p.Kill()
}

// Kill on Windows reaches only the direct child, so no group is created.
func setProcessGroup(*exec.Cmd) {}

func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
