package extension

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// MissingPreferenceError names required preferences that are unset.
type MissingPreferenceError struct {
	Extension string
	Names     []string
}

func (e *MissingPreferenceError) Error() string {
	return fmt.Sprintf("%s: missing preference %s (set with: deck config set %s.%s <value>)",
		e.Extension, strings.Join(e.Names, ", "), e.Extension, e.Names[0])
}

// Preferences is a read-only set of string preferences.
type Preferences struct {
	values map[string]string
}

// NewPreferences copies values.
func NewPreferences(values map[string]string) Preferences {
	return Preferences{values: maps.Clone(values)}
}

// Resolve fills defaults from specs and checks required preferences.
func Resolve(ext string, specs []PreferenceSpec, values map[string]string) (Preferences, error) {
	out := maps.Clone(values)
	if out == nil {
		out = map[string]string{}
	}
	var missing []string
	for _, s := range specs {
		if strings.TrimSpace(out[s.Name]) != "" {
			continue
		}
		if s.Default != "" {
			out[s.Name] = s.Default
			continue
		}
		if s.Required {
			missing = append(missing, s.Name)
		}
	}
	p := Preferences{values: out}
	if len(missing) > 0 {
		return p, &MissingPreferenceError{Extension: ext, Names: missing}
	}
	return p, nil
}

// String returns the preference or "".
func (p Preferences) String(name string) string {
	return strings.TrimSpace(p.values[name])
}

// StringOr returns the preference or def when unset.
func (p Preferences) StringOr(name, def string) string {
	if v := p.String(name); v != "" {
		return v
	}
	return def
}

// Bool parses the preference, returning false when unset or malformed.
func (p Preferences) Bool(name string) bool {
	b, _ := strconv.ParseBool(p.String(name))
	return b
}

// Int parses the preference, returning def when unset or malformed.
func (p Preferences) Int(name string, def int) int {
	n, err := strconv.Atoi(p.String(name))
	if err != nil {
		return def
	}
	return n
}

// List splits a comma separated preference, dropping blanks.
func (p Preferences) List(name string) []string {
	var out []string
	for _, s := range strings.Split(p.String(name), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
