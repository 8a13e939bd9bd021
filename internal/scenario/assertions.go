package scenario

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// checkSnapshot evaluates each path assertion against doc. Paths are checked
// in sorted order so the first failure is stable.
func checkSnapshot(doc any, assertions map[string]any) error {
	paths := make([]string, 0, len(assertions))
	for p := range assertions {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := checkOne(doc, path, assertions[path]); err != nil {
			return err
		}
	}
	return nil
}

func checkOne(doc any, path string, expected any) error {
	actual, found, err := lookup(doc, path)
	if err != nil {
		return err
	}
	if ops, ok := expected.(map[string]any); ok {
		return checkOperators(path, actual, found, ops)
	}
	if !found {
		return fmt.Errorf("%s: no match found", path)
	}
	if !valuesEqual(actual, expected) {
		return fmt.Errorf("%s: expected %v, got %v", path, expected, actual)
	}
	return nil
}

// checkOperators handles {"exists": b}, {"eq": v}, {"gte": n}, {"lte": n},
// {"len": n}, {"contains": s} and {"regex": p}.
func checkOperators(path string, actual any, found bool, ops map[string]any) error {
	for op, expected := range ops {
		if op == "exists" {
			want, ok := expected.(bool)
			if !ok {
				return fmt.Errorf("%s: exists requires a boolean", path)
			}
			if want != found {
				return fmt.Errorf("%s: expected exists=%v", path, want)
			}
			continue
		}
		if !found {
			return fmt.Errorf("%s: no match found for %s", path, op)
		}

		switch op {
		case "eq":
			if !valuesEqual(actual, expected) {
				return fmt.Errorf("%s: expected eq %v, got %v", path, expected, actual)
			}
		case "gte", "lte":
			a, errA := toFloat64(actual)
			e, errE := toFloat64(expected)
			if errA != nil || errE != nil {
				return fmt.Errorf("%s: %s requires numbers, got %v and %v", path, op, actual, expected)
			}
			if (op == "gte" && a < e) || (op == "lte" && a > e) {
				return fmt.Errorf("%s: expected %s %v, got %v", path, op, e, a)
			}
		case "len":
			want, err := toFloat64(expected)
			if err != nil {
				return fmt.Errorf("%s: len requires a number", path)
			}
			n, err := length(actual)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if float64(n) != want {
				return fmt.Errorf("%s: expected len %v, got %d", path, want, n)
			}
		case "contains":
			a, e := fmt.Sprint(actual), fmt.Sprint(expected)
			if !strings.Contains(a, e) {
				return fmt.Errorf("%s: expected to contain %q, got %q", path, e, a)
			}
		case "regex":
			pattern, ok := expected.(string)
			if !ok {
				return fmt.Errorf("%s: regex requires a string pattern", path)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("%s: invalid regex %q: %w", path, pattern, err)
			}
			if a := fmt.Sprint(actual); !re.MatchString(a) {
				return fmt.Errorf("%s: %q does not match %q", path, a, pattern)
			}
		default:
			return fmt.Errorf("%s: unknown operator %q", path, op)
		}
	}
	return nil
}

func length(v any) (int, error) {
	switch x := v.(type) {
	case []any:
		return len(x), nil
	case map[string]any:
		return len(x), nil
	case string:
		return len(x), nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("len of %T", v)
}

// valuesEqual compares numbers as numbers and everything else by its
// printed form. A number never equals a string.
func valuesEqual(actual, expected any) bool {
	a, errA := toFloat64(actual)
	e, errE := toFloat64(expected)
	if errA == nil && errE == nil {
		return a == e
	}
	if (errA == nil) != (errE == nil) {
		return false
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
}
