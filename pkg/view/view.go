// Package view describes screens as plain data. A renderer outside this
// module turns them into UI; here they are only built and serialised.
package view

import "encoding/json"

// View is one of *List, *Detail, *Form or *Output.
type View interface {
	kind() string
}

// List is a searchable list of sections.
type List struct {
	Title             string    `json:"title,omitempty"`
	IsLoading         bool      `json:"isLoading"`
	SearchText        string    `json:"searchText,omitempty"`
	SearchPlaceholder string    `json:"searchPlaceholder,omitempty"`
	Dropdown          *Dropdown `json:"dropdown,omitempty"`
	Sections          []Section `json:"sections"`
	Empty             *Empty    `json:"empty,omitempty"`
	Pagination        *Page     `json:"pagination,omitempty"`
}

// Section groups items under an optional title.
type Section struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Items    []Item `json:"items"`
}

// Item is one row.
type Item struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Subtitle    string      `json:"subtitle,omitempty"`
	Icon        *Icon       `json:"icon,omitempty"`
	Accessories []Accessory `json:"accessories,omitempty"`
	Keywords    []string    `json:"keywords,omitempty"`
	Actions     []Action    `json:"actions,omitempty"`
	Detail      *Detail     `json:"detail,omitempty"`
}

// Icon is a named builtin icon or an image URL, optionally tinted.
type Icon struct {
	Source string `json:"source"`
	Tint   string `json:"tint,omitempty"`
}

// Accessory is trailing row metadata.
type Accessory struct {
	Text    string `json:"text,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Date    string `json:"date,omitempty"`
	Icon    *Icon  `json:"icon,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
}

// Empty is shown when a list has no items.
type Empty struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        *Icon  `json:"icon,omitempty"`
}

// Page is pagination metadata.
type Page struct {
	Current int  `json:"current"`
	Total   int  `json:"total,omitempty"`
	HasMore bool `json:"hasMore"`
}

// Dropdown is a list-level filter such as a category selector.
type Dropdown struct {
	ID      string   `json:"id"`
	Tooltip string   `json:"tooltip,omitempty"`
	Value   string   `json:"value"`
	Options []Option `json:"options"`
}

// Option is one choice in a Dropdown or a select Field.
type Option struct {
	Value string `json:"value"`
	Title string `json:"title"`
}

// Detail renders markdown with a metadata sidebar.
type Detail struct {
	Title     string     `json:"title,omitempty"`
	IsLoading bool       `json:"isLoading,omitempty"`
	Markdown  string     `json:"markdown"`
	Metadata  []Metadata `json:"metadata,omitempty"`
	Actions   []Action   `json:"actions,omitempty"`
}

// Metadata is a label/value pair in a Detail sidebar.
type Metadata struct {
	Label string `json:"label"`
	Text  string `json:"text,omitempty"`
	Link  string `json:"link,omitempty"`
}

// Output is a live process log.
type Output struct {
	Title    string   `json:"title"`
	State    string   `json:"state"`
	Log      string   `json:"log"`
	ExitCode int      `json:"exitCode,omitempty"`
	Retries  int      `json:"retries,omitempty"`
	Actions  []Action `json:"actions,omitempty"`
}

func (*List) kind() string   { return "list" }
func (*Detail) kind() string { return "detail" }
func (*Form) kind() string   { return "form" }
func (*Output) kind() string { return "output" }

// Envelope tags a View with its kind for the wire.
type Envelope struct {
	Type string `json:"type"`
	View View   `json:"view"`
}

// Wrap returns v's envelope.
func Wrap(v View) Envelope {
	if v == nil {
		return Envelope{Type: "empty"}
	}
	return Envelope{Type: v.kind(), View: v}
}

// Marshal serialises v inside its envelope.
func Marshal(v View) ([]byte, error) {
	return json.Marshal(Wrap(v))
}

// AllItems flattens a list's sections.
func (l *List) AllItems() []Item {
	var out []Item
	for _, s := range l.Sections {
		out = append(out, s.Items...)
	}
	return out
}

// Find returns the item with id.
func (l *List) Find(id string) (Item, bool) {
	for _, s := range l.Sections {
		for _, it := range s.Items {
			if it.ID == id {
				return it, true
			}
		}
	}
	return Item{}, false
}
