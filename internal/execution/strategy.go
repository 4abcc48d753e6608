package execution

import "context"

// Target is an explicit SSH destination for hosts without an alias.
type Target struct {
	Host string
	User string
	Port int
}

// SpawnRequest carries the strategy parameters of one invocation.
type SpawnRequest struct {
	Command    string
	WorkingDir string
	HostAlias  string
	Target     *Target
}

// Strategy turns a command into exactly one started OS process.
//
// Spawn returns a *StartError when the operating system refused to start
// the process. Any other error is a rejection: no process was started.
type Strategy interface {
	Kind() Kind
	Spawn(ctx context.Context, req SpawnRequest) (*Process, error)
}
