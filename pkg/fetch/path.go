package fetch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// lookup evaluates a payload path such as $.data.items or $.errors[0].message
// against a decoded JSON document. A path that walks off the document is a
// miss, not an error; only a malformed path is an error.
func lookup(doc any, path string) (any, bool, error) {
	if !strings.HasPrefix(path, "$") {
		return nil, false, fmt.Errorf("payload path must start with $: %q", path)
	}
	rest := strings.TrimPrefix(path[1:], ".")
	current := doc

	for _, seg := range splitSegments(rest) {
		if seg == "" {
			continue
		}
		name, index, hasIndex, err := parseSegment(seg)
		if err != nil {
			return nil, false, err
		}
		if name != "" {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false, nil
			}
			if current, ok = m[name]; !ok {
				return nil, false, nil
			}
		}
		if hasIndex {
			arr, ok := current.([]any)
			if !ok || index < 0 || index >= len(arr) {
				return nil, false, nil
			}
			current = arr[index]
		}
	}
	return current, true, nil
}

func parseSegment(seg string) (name string, index int, hasIndex bool, err error) {
	open := strings.Index(seg, "[")
	if open < 0 {
		return seg, 0, false, nil
	}
	if !strings.HasSuffix(seg, "]") {
		return "", 0, false, fmt.Errorf("unterminated index in %q", seg)
	}
	index, err = strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid index in %q: %w", seg, err)
	}
	return seg[:open], index, true, nil
}

// splitSegments splits "data.items[0].name" on dots outside brackets.
func splitSegments(path string) []string {
	var (
		segments []string
		current  strings.Builder
		depth    int
	)
	for _, ch := range path {
		switch {
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case ch == '.' && depth == 0:
			segments = append(segments, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(ch)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

func parseDocument(body []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Extract returns the JSON encoding of the sub-tree of body addressed by path.
func Extract(body []byte, path string) ([]byte, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, &ShapeError{Type: "json", Err: err}
	}
	v, ok, err := lookup(doc, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ShapeError{Type: "json", Err: fmt.Errorf("payload %s not found", path)}
	}
	return json.Marshal(v)
}
