package execution

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/martijn/vmorch/internal/core/domain"
)

const DefaultConnectTimeout = 10

// HostResolver resolves a host alias to connection parameters.
type HostResolver interface {
	Resolve(alias string) (*domain.SSHHost, error)
}

// SSHStrategy runs the command on a remote host through the ssh client.
type SSHStrategy struct {
	resolver       HostResolver
	binary         string
	connectTimeout int
	runCmd         CmdFunc
}

func NewSSHStrategy(resolver HostResolver, binary string, connectTimeout int) *SSHStrategy {
	if binary == "" {
		binary = "ssh"
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &SSHStrategy{
		resolver:       resolver,
		binary:         binary,
		connectTimeout: connectTimeout,
		runCmd:         exec.Command,
	}
}

func (s *SSHStrategy) Kind() Kind { return KindSSH }

func (s *SSHStrategy) Spawn(_ context.Context, req SpawnRequest) (*Process, error) {
	host, err := s.destination(req)
	if err != nil {
		return nil, err
	}

	cmd := s.runCmd(s.binary, s.Args(host, req.Command)...)
	return startProcess(cmd, false)
}

func (s *SSHStrategy) destination(req SpawnRequest) (*domain.SSHHost, error) {
	if req.HostAlias != "" {
		if s.resolver == nil {
			return nil, fmt.Errorf("no ssh host resolver configured")
		}
		host, err := s.resolver.Resolve(req.HostAlias)
		if err != nil {
			return nil, fmt.Errorf("resolve host alias %q: %w", req.HostAlias, err)
		}
		return host, nil
	}
	if req.Target != nil && req.Target.Host != "" {
		return &domain.SSHHost{
			Host: req.Target.Host,
			User: req.Target.User,
			Port: req.Target.Port,
		}, nil
	}
	return nil, ErrMissingHost
}

// Args builds the ssh argument list. The remote command is passed as a
// single argument. Option parsing ends before the destination, so a host
// taken from a request can never be read as an ssh option.
func (s *SSHStrategy) Args(host *domain.SSHHost, command string) []string {
	var args []string

	port := host.Port
	if port <= 0 {
		port = 22
	}
	args = append(args, "-p", strconv.Itoa(port))

	if host.IdentityFile != "" {
		args = append(args, "-i", host.IdentityFile)
	}

	strict := "no"
	if host.StrictHostKeyChecking {
		strict = "yes"
	}
	timeout := host.ConnectTimeout
	if timeout <= 0 {
		timeout = s.connectTimeout
	}

	args = append(args,
		"-o", "StrictHostKeyChecking="+strict,
		"-o", "ConnectTimeout="+strconv.Itoa(timeout),
		"-o", "BatchMode=yes",
	)

	dest := host.Host
	if host.User != "" {
		dest = host.User + "@" + host.Host
	}

	return append(args, "--", dest, command)
}
