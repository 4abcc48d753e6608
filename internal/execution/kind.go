package execution

import "fmt"

// Kind names an execution strategy.
type Kind string

const (
	KindStream   Kind = "stream"
	KindSSH      Kind = "ssh"
	KindTerminal Kind = "terminal"
)

// Kinds lists every supported strategy.
var Kinds = []Kind{KindStream, KindSSH, KindTerminal}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindStream, KindSSH, KindTerminal:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Streamed reports whether processes of this kind produce observed output.
func (k Kind) Streamed() bool {
	return k != KindTerminal
}
