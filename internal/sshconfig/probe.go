package sshconfig

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	MinProbeTimeout     = time.Second
	MaxProbeTimeout     = 30 * time.Second
	DefaultProbeTimeout = 5 * time.Second

	probeCommand = `echo "connection test successful"`
)

var defaultKeyFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// ProbeResult is the outcome of a connection test.
type ProbeResult struct {
	Alias     string        `json:"alias"`
	Host      string        `json:"host"`
	Success   bool          `json:"success"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latencyNs"`
	CheckedAt time.Time     `json:"checkedAt"`
}

func ClampProbeTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultProbeTimeout
	case d < MinProbeTimeout:
		return MinProbeTimeout
	case d > MaxProbeTimeout:
		return MaxProbeTimeout
	}
	return d
}

// Probe connects to alias and runs a trivial command. An unknown alias is
// returned as an error; connection failures are reported in the result.
func (r *Resolver) Probe(ctx context.Context, alias string, timeout time.Duration) (*ProbeResult, error) {
	host, err := r.Resolve(alias)
	if err != nil {
		return nil, err
	}

	timeout = ClampProbeTimeout(timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := &ProbeResult{Alias: alias, Host: host.Host, CheckedAt: time.Now().UTC()}
	start := time.Now()

	out, err := r.run(ctx, host.Host, host.Port, host.User, host.IdentityFile, host.StrictHostKeyChecking, timeout)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		r.logger.Info("ssh probe failed", "alias", alias, "error", err)
		return res, nil
	}

	res.Success = true
	res.Output = strings.TrimSpace(out)
	return res, nil
}

func (r *Resolver) run(ctx context.Context, host string, port int, user, identityFile string, strict bool, timeout time.Duration) (string, error) {
	auth, closeAgent := authMethods(identityFile)
	defer closeAgent()
	if len(auth) == 0 {
		return "", errors.New("no usable ssh credentials: set IdentityFile or run an ssh agent")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if strict {
		cb, err := knownhosts.New(filepath.Join(homeDir(), ".ssh", "known_hosts"))
		if err != nil {
			return "", fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKey = cb
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	})
	if err != nil {
		return "", fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(probeCommand)
	if err != nil {
		return string(out), fmt.Errorf("probe command failed: %w", err)
	}
	return string(out), nil
}

// authMethods collects the configured identity, the default key files and
// the ssh agent, in that order.
func authMethods(identityFile string) ([]ssh.AuthMethod, func()) {
	var signers []ssh.Signer

	files := []string{}
	if identityFile != "" {
		files = append(files, identityFile)
	} else {
		for _, name := range defaultKeyFiles {
			files = append(files, filepath.Join(homeDir(), ".ssh", name))
		}
	}
	for _, path := range files {
		key, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}

	var methods []ssh.AuthMethod
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	closeAgent := func() {}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			closeAgent = func() { conn.Close() }
		}
	}

	return methods, closeAgent
}
