package execution

import "strings"

// ParseCommand splits command into argv. A single or double quote starts a
// span that is not split on whitespace until the same quote character
// closes it. The quote characters themselves are dropped. An unterminated
// quote runs to the end of the string.
func ParseCommand(command string) []string {
	var (
		parts   []string
		current strings.Builder
		quote   rune
		pending bool
	)

	flush := func() {
		if pending {
			parts = append(parts, current.String())
			current.Reset()
			pending = false
		}
	}

	for _, r := range command {
		switch {
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			pending = true
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			current.WriteRune(r)
			pending = true
		}
	}
	flush()

	return parts
}
