// Package transform holds the small total-mapping helpers extension
// Transformers are written with. Every helper returns a defined value for
// absent input: empty string, zero, or an empty non-nil slice.
package transform

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Func maps one raw upstream value to a view-model value.
type Func[In, Out any] func(In) Out

// Str dereferences p, returning "" for nil.
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Or returns v unless it is the zero value, in which case def.
func Or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Deref dereferences p, returning the zero value for nil.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// NonNil returns s, or an empty slice if s is nil.
func NonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Map applies fn to every element. The result is never nil.
func Map[In, Out any](in []In, fn func(In) Out) []Out {
	out := make([]Out, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

// Filter keeps the elements for which keep returns true. The result is never nil.
func Filter[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// Replace returns a copy of list where every element matching match has
// been passed through fn. The input slice is left untouched.
func Replace[T any](list []T, match func(T) bool, fn func(T) T) []T {
	out := make([]T, len(list))
	for i, v := range list {
		if match(v) {
			v = fn(v)
		}
		out[i] = v
	}
	return out
}

// Remove returns a copy of list without the elements matching match.
func Remove[T any](list []T, match func(T) bool) []T {
	return Filter(list, func(v T) bool { return !match(v) })
}

// Time parses s with the first layout that accepts it. Unparseable or empty
// input yields the zero time.
func Time(s string, layouts ...string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if len(layouts) == 0 {
		layouts = []string{time.RFC3339Nano, time.RFC3339, time.DateOnly}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
