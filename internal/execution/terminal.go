package execution

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

type linuxTerminal struct {
	name string
	args func(shell, script string) []string
}

// linuxTerminals is the lookup order on Linux and BSDs.
var linuxTerminals = []linuxTerminal{
	{"gnome-terminal", func(shell, script string) []string { return []string{"--", shell, "-c", script} }},
	{"konsole", func(shell, script string) []string { return []string{"-e", shell, "-c", script} }},
	{"xfce4-terminal", func(shell, script string) []string { return []string{"-x", shell, "-c", script} }},
	{"xterm", func(shell, script string) []string { return []string{"-e", shell, "-c", script} }},
}

// TerminalStrategy opens a new interactive terminal window running the
// command. The window is not observed after launch.
type TerminalStrategy struct {
	goos       string
	lookPath   func(file string) (string, error)
	runCmd     CmdFunc
	shell      string
	defaultDir string
}

// NewTerminalStrategy creates a TerminalStrategy. An empty shell falls back
// to $SHELL and then bash.
func NewTerminalStrategy(shell, defaultDir string) *TerminalStrategy {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "bash"
	}
	return &TerminalStrategy{
		goos:       runtime.GOOS,
		lookPath:   exec.LookPath,
		runCmd:     exec.Command,
		shell:      shell,
		defaultDir: defaultDir,
	}
}

func (s *TerminalStrategy) Kind() Kind { return KindTerminal }

func (s *TerminalStrategy) Spawn(_ context.Context, req SpawnRequest) (*Process, error) {
	dir := req.WorkingDir
	if dir == "" {
		dir = s.defaultDir
	}

	name, args, err := s.Launcher(req.Command, dir)
	if err != nil {
		return nil, err
	}

	cmd := s.runCmd(name, args...)
	if s.goos == "windows" && dir != "" {
		cmd.Dir = dir
	}
	return startProcess(cmd, true)
}

// Launcher returns the program and arguments that open a terminal for command.
func (s *TerminalStrategy) Launcher(command, dir string) (string, []string, error) {
	switch s.goos {
	case "darwin":
		script := s.script(command, dir)
		apple := fmt.Sprintf(`tell application "Terminal" to do script "%s"`, appleScriptEscape(script))
		return "osascript", []string{"-e", apple, "-e", `tell application "Terminal" to activate`}, nil

	case "linux", "freebsd", "openbsd", "netbsd":
		script := s.script(command, dir)
		for _, t := range linuxTerminals {
			if _, err := s.lookPath(t.name); err == nil {
				return t.name, t.args(s.shell, script), nil
			}
		}
		return "", nil, ErrNoTerminal

	case "windows":
		if _, err := s.lookPath("wt"); err == nil {
			args := []string{}
			if dir != "" {
				args = append(args, "-d", dir)
			}
			return "wt", append(args, "cmd", "/k", command), nil
		}
		return "cmd", []string{"/c", "start", "cmd", "/k", command}, nil

	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, s.goos)
	}
}

// script keeps the shell open after command exits.
func (s *TerminalStrategy) script(command, dir string) string {
	var b strings.Builder
	if dir != "" {
		b.WriteString("cd ")
		b.WriteString(shellQuote(dir))
		b.WriteString(" && ")
	}
	b.WriteString(command)
	b.WriteString("; exec ")
	b.WriteString(s.shell)
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func appleScriptEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
