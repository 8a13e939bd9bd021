package view

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalid is returned by screens when submitted values fail validation.
// The form carrying the per-field messages is rendered instead.
var ErrInvalid = errors.New("form has invalid fields")

// FieldKind is a form input type.
type FieldKind string

const (
	TextField     FieldKind = "text"
	TextArea      FieldKind = "textarea"
	PasswordField FieldKind = "password"
	Checkbox      FieldKind = "checkbox"
	Select        FieldKind = "select"
	DateField     FieldKind = "date"
)

// Form collects input and submits it.
type Form struct {
	Title  string  `json:"title,omitempty"`
	Fields []Field `json:"fields"`
	Submit Action  `json:"submit"`
}

// Field is one input. Rules are evaluated on Validate.
type Field struct {
	ID          string    `json:"id"`
	Kind        FieldKind `json:"kind"`
	Title       string    `json:"title"`
	Placeholder string    `json:"placeholder,omitempty"`
	Info        string    `json:"info,omitempty"`
	Value       string    `json:"value,omitempty"`
	Options     []Option  `json:"options,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Error       string    `json:"error,omitempty"`
	Rules       []Rule    `json:"-"`
}

// Rule returns a message when value is unacceptable, or "".
type Rule func(value string) string

// Required rejects blank values.
func Required(value string) string {
	if strings.TrimSpace(value) == "" {
		return "This field is required"
	}
	return ""
}

// URL rejects values that are not absolute http(s) URLs. Blank is allowed.
func URL(value string) string {
	if value == "" {
		return ""
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "Must be a valid URL"
	}
	return ""
}

// Pattern rejects non-blank values that do not match expr.
func Pattern(expr, message string) Rule {
	re := regexp.MustCompile(expr)
	return func(value string) string {
		if value != "" && !re.MatchString(value) {
			return message
		}
		return ""
	}
}

// Integer rejects non-blank values that are not whole numbers in [min, max].
func Integer(min, max int) Rule {
	return func(value string) string {
		if value == "" {
			return ""
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return "Must be a number"
		}
		if n < min || n > max {
			return fmt.Sprintf("Must be between %d and %d", min, max)
		}
		return ""
	}
}

// Validate copies values into the form's fields and records the first
// failing rule of each field. It reports whether every field passed.
func (f *Form) Validate(values map[string]string) bool {
	ok := true
	for i := range f.Fields {
		fld := &f.Fields[i]
		if v, present := values[fld.ID]; present {
			fld.Value = v
		}
		fld.Error = ""
		rules := fld.Rules
		if fld.Required {
			rules = append([]Rule{Required}, rules...)
		}
		for _, rule := range rules {
			if msg := rule(fld.Value); msg != "" {
				fld.Error = msg
				ok = false
				break
			}
		}
	}
	return ok
}

// Values returns the current field values keyed by ID.
func (f *Form) Values() map[string]string {
	out := make(map[string]string, len(f.Fields))
	for _, fld := range f.Fields {
		out[fld.ID] = fld.Value
	}
	return out
}

// Field returns a pointer to the field with id, or nil.
func (f *Form) Field(id string) *Field {
	for i := range f.Fields {
		if f.Fields[i].ID == id {
			return &f.Fields[i]
		}
	}
	return nil
}
