package execution

import (
	"context"
	"os"
	"os/exec"
)

// LocalStrategy runs the command directly, without a shell.
type LocalStrategy struct {
	runCmd     CmdFunc
	defaultDir string
}

// NewLocalStrategy creates a LocalStrategy. defaultDir applies when a request
// has no working directory; empty means the server's own.
func NewLocalStrategy(defaultDir string) *LocalStrategy {
	return &LocalStrategy{runCmd: exec.Command, defaultDir: defaultDir}
}

func (s *LocalStrategy) Kind() Kind { return KindStream }

func (s *LocalStrategy) Spawn(_ context.Context, req SpawnRequest) (*Process, error) {
	argv := ParseCommand(req.Command)
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := s.runCmd(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	cmd.Dir = req.WorkingDir
	if cmd.Dir == "" {
		cmd.Dir = s.defaultDir
	}

	return startProcess(cmd, false)
}
