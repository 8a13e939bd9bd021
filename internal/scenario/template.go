package scenario

import (
	"fmt"
	"os"
	"strings"
)

// ExpandTemplates replaces placeholders in s:
//   - {{env.VARIABLE}} from the environment
//   - {{name}} from scenario variables and captures
func ExpandTemplates(s string, vars map[string]string) (string, error) {
	result := s
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("unterminated template expression at position %d", start)
		}
		end += start + 2

		value, err := resolveExpr(strings.TrimSpace(result[start+2:end-2]), vars)
		if err != nil {
			return "", err
		}
		result = result[:start] + value + result[end:]
	}
	return result, nil
}

func resolveExpr(expr string, vars map[string]string) (string, error) {
	if key, ok := strings.CutPrefix(expr, "env."); ok {
		return os.Getenv(key), nil
	}
	if val, ok := vars[expr]; ok {
		return val, nil
	}
	return "", fmt.Errorf("unresolved template expression: %q", expr)
}

func expandMap(m map[string]string, vars map[string]string) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		expanded, err := ExpandTemplates(v, vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = expanded
	}
	return out, nil
}
