// Package extension defines what an extension is: named commands that open
// screens, the preferences they read, and the environment each command
// receives.
package extension

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/extdeck/extdeck/pkg/view"
)

// ErrNotFound is returned for unknown extensions, commands and actions.
var ErrNotFound = errors.New("not found")

// Screen is an open command. Render is cheap and safe to call at any time;
// it reflects the latest binding state.
type Screen interface {
	Render() view.View
	// Perform handles an action chosen by the user. input carries form
	// values for submit actions.
	Perform(ctx context.Context, action string, input map[string]string) error
	// Wait blocks until in-flight fetches have settled.
	Wait()
	Close()
}

// Searchable screens react to the search bar.
type Searchable interface {
	Search(text string)
}

// Filterable screens react to the list dropdown.
type Filterable interface {
	Filter(value string)
}

// OpenFunc opens a command.
type OpenFunc func(ctx context.Context, env *Env, args map[string]string) (Screen, error)

// Argument is a positional command argument.
type Argument struct {
	Name        string `json:"name"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Command is one entry point of an extension.
type Command struct {
	Name        string     `json:"name"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Arguments   []Argument `json:"arguments,omitempty"`
	Open        OpenFunc   `json:"-"`
}

// PreferenceSpec declares a preference the extension reads.
type PreferenceSpec struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Secret      bool   `json:"secret,omitempty"`
	Default     string `json:"default,omitempty"`
}

// Extension groups commands sharing preferences and storage.
type Extension struct {
	Name        string           `json:"name"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Preferences []PreferenceSpec `json:"preferences,omitempty"`
	Commands    []Command        `json:"commands"`
}

// Command returns the command called name.
func (e *Extension) Command(name string) (*Command, error) {
	for i := range e.Commands {
		if e.Commands[i].Name == name {
			return &e.Commands[i], nil
		}
	}
	return nil, fmt.Errorf("command %s/%s: %w", e.Name, name, ErrNotFound)
}

// CheckArgs reports missing required arguments.
func (c *Command) CheckArgs(args map[string]string) error {
	var missing []string
	for _, a := range c.Arguments {
		if a.Required && strings.TrimSpace(args[a.Name]) == "" {
			missing = append(missing, a.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("command %s: missing argument %s", c.Name, strings.Join(missing, ", "))
	}
	return nil
}

// Registry holds the installed extensions.
type Registry struct {
	exts map[string]*Extension
}

// NewRegistry registers exts. It panics on a duplicate name.
func NewRegistry(exts ...*Extension) *Registry {
	r := &Registry{exts: make(map[string]*Extension, len(exts))}
	for _, e := range exts {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds e.
func (r *Registry) Register(e *Extension) error {
	if e.Name == "" {
		return errors.New("extension has no name")
	}
	if _, dup := r.exts[e.Name]; dup {
		return fmt.Errorf("extension %s registered twice", e.Name)
	}
	r.exts[e.Name] = e
	return nil
}

// Get returns the extension called name.
func (r *Registry) Get(name string) (*Extension, error) {
	e, ok := r.exts[name]
	if !ok {
		return nil, fmt.Errorf("extension %s: %w", name, ErrNotFound)
	}
	return e, nil
}

// Lookup resolves ext/cmd.
func (r *Registry) Lookup(ext, cmd string) (*Extension, *Command, error) {
	e, err := r.Get(ext)
	if err != nil {
		return nil, nil, err
	}
	c, err := e.Command(cmd)
	if err != nil {
		return nil, nil, err
	}
	return e, c, nil
}

// List returns extensions sorted by name.
func (r *Registry) List() []*Extension {
	out := make([]*Extension, 0, len(r.exts))
	for _, e := range r.exts {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
