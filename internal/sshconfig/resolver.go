// Package sshconfig resolves host aliases from an OpenSSH client config file.
package sshconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"

	"github.com/martijn/vmorch/internal/core/domain"
)

const (
	defaultPort = 22
	defaultUser = "ubuntu"
)

var ErrHostNotFound = errors.New("host not found in SSH config")

// gitHosts are alias or hostname fragments of source hosting services, which
// are never offered as execution targets.
var gitHosts = []string{"github", "gitlab", "bitbucket", "git."}

// Resolver reads the config file on every call so edits apply without a
// restart.
type Resolver struct {
	path           string
	connectTimeout int
	logger         *slog.Logger
}

// NewResolver creates a Resolver for path. An empty path means
// ~/.ssh/config. connectTimeout is the value used when a host does not set
// ConnectTimeout.
func NewResolver(path string, connectTimeout int, logger *slog.Logger) *Resolver {
	if path == "" {
		path = DefaultPath()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{path: expandHome(path), connectTimeout: connectTimeout, logger: logger}
}

func DefaultPath() string {
	return filepath.Join(homeDir(), ".ssh", "config")
}

func (r *Resolver) Path() string {
	return r.path
}

// load returns nil without error when the file does not exist.
func (r *Resolver) load() (*ssh_config.Config, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("ssh config file not found", "path", r.path)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ssh config: %w", err)
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh config %s: %w", r.path, err)
	}
	return cfg, nil
}

// Resolve returns the connection parameters of alias. The alias must be
// named literally on a Host line; wildcard blocks only contribute values.
func (r *Resolver) Resolve(alias string) (*domain.SSHHost, error) {
	if strings.TrimSpace(alias) == "" {
		return nil, fmt.Errorf("host alias must be a non-empty string")
	}

	cfg, err := r.load()
	if err != nil {
		return nil, err
	}
	if cfg == nil || !slices.Contains(aliases(cfg), alias) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, alias)
	}

	return r.resolve(cfg, alias), nil
}

func (r *Resolver) resolve(cfg *ssh_config.Config, alias string) *domain.SSHHost {
	get := func(key string) string {
		v, err := cfg.Get(alias, key)
		if err != nil {
			r.logger.Warn("invalid ssh config value", "alias", alias, "key", key, "error", err)
			return ""
		}
		return strings.Trim(v, `"'`)
	}

	host := &domain.SSHHost{
		Alias:                 alias,
		Host:                  get("HostName"),
		User:                  get("User"),
		Port:                  defaultPort,
		StrictHostKeyChecking: strings.EqualFold(get("StrictHostKeyChecking"), "yes"),
		ConnectTimeout:        r.connectTimeout,
	}
	if host.Host == "" {
		host.Host = alias
	}
	if host.User == "" {
		host.User = os.Getenv("USER")
	}
	if host.User == "" {
		host.User = defaultUser
	}

	if v := get("Port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			r.logger.Warn("invalid port in ssh config, using default", "alias", alias, "port", v, "default", defaultPort)
		} else {
			host.Port = port
		}
	}

	if v := get("IdentityFile"); v != "" {
		host.IdentityFile = expandHome(v)
	}

	if v := get("ConnectTimeout"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			host.ConnectTimeout = n
		}
	}

	return host
}

// List returns the hosts that can serve as execution targets, in file
// order. Wildcard patterns, localhost and source hosting aliases are left
// out.
func (r *Resolver) List() ([]domain.SSHHost, error) {
	cfg, err := r.load()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return []domain.SSHHost{}, nil
	}

	out := []domain.SSHHost{}
	for _, alias := range aliases(cfg) {
		if strings.ContainsAny(alias, "*?!") {
			continue
		}
		host := r.resolve(cfg, alias)
		if !isServerHost(host) {
			continue
		}
		out = append(out, *host)
	}
	return out, nil
}

func isServerHost(h *domain.SSHHost) bool {
	alias := strings.ToLower(h.Alias)
	hostname := strings.ToLower(h.Host)
	if alias == "localhost" || hostname == "localhost" {
		return false
	}
	for _, g := range gitHosts {
		if strings.Contains(alias, g) || strings.Contains(hostname, g) {
			return false
		}
	}
	return true
}

// aliases returns every pattern named on a Host line, deduplicated, in file
// order.
func aliases(cfg *ssh_config.Config) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, h := range cfg.Hosts {
		for _, p := range h.Patterns {
			s := p.String()
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
