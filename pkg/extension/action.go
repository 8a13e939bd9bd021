package extension

import (
	"fmt"
	"net/url"
	"strings"
)

// ActionID joins a verb and its operands into an action identifier such as
// "complete:8812". Operands are escaped so they may contain colons.
func ActionID(verb string, operands ...string) string {
	parts := make([]string, 0, len(operands)+1)
	parts = append(parts, verb)
	for _, o := range operands {
		parts = append(parts, url.QueryEscape(o))
	}
	return strings.Join(parts, ":")
}

// ParseAction splits an action identifier built by ActionID.
func ParseAction(id string) (verb string, operands []string) {
	parts := strings.Split(id, ":")
	operands = make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if s, err := url.QueryUnescape(p); err == nil {
			p = s
		}
		operands = append(operands, p)
	}
	return parts[0], operands
}

// UnknownAction is returned by screens for actions they do not handle.
func UnknownAction(id string) error {
	return fmt.Errorf("action %q: %w", id, ErrNotFound)
}
