package scenario

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// lookup evaluates a dot-notation path like $.view.sections[0].items[1].title
// against a decoded JSON document. ok is false when nothing matches.
func lookup(doc any, path string) (val any, ok bool, err error) {
	rest, found := strings.CutPrefix(path, "$")
	if !found {
		return nil, false, fmt.Errorf("path must start with $: %q", path)
	}
	rest = strings.TrimPrefix(rest, ".")

	current := doc
	for _, seg := range splitSegments(rest) {
		if seg == "" {
			continue
		}
		field, indexes, err := parseSegment(seg)
		if err != nil {
			return nil, false, err
		}
		if field != "" {
			m, isMap := current.(map[string]any)
			if !isMap {
				return nil, false, nil
			}
			if current, ok = m[field]; !ok {
				return nil, false, nil
			}
		}
		for _, i := range indexes {
			arr, isArr := current.([]any)
			if !isArr || i < 0 || i >= len(arr) {
				return nil, false, nil
			}
			current = arr[i]
		}
	}
	return current, true, nil
}

// parseSegment splits "items[0][2]" into its field and indexes.
func parseSegment(seg string) (string, []int, error) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, nil, nil
	}
	field := seg[:open]
	var indexes []int
	for rest := seg[open:]; rest != ""; {
		end := strings.IndexByte(rest, ']')
		if rest[0] != '[' || end < 0 {
			return "", nil, fmt.Errorf("malformed index in %q", seg)
		}
		i, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("invalid array index in %q: %w", seg, err)
		}
		indexes = append(indexes, i)
		rest = rest[end+1:]
	}
	return field, indexes, nil
}

func splitSegments(path string) []string {
	var segments []string
	var current strings.Builder
	depth := 0
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

// decode round-trips v through JSON so lookups see the wire shape.
func decode(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
