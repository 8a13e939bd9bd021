package view

import (
	"encoding/json"
	"testing"
)

func TestMarshalEnvelope(t *testing.T) {
	l := &List{Title: "Tasks", Sections: []Section{{Items: []Item{{ID: "1", Title: "Buy milk"}}}}}
	data, err := Marshal(l)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Type string `json:"type"`
		View struct {
			Sections []struct {
				Items []struct {
					ID string `json:"id"`
				} `json:"items"`
			} `json:"sections"`
		} `json:"view"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "list" || got.View.Sections[0].Items[0].ID != "1" {
		t.Errorf("envelope = %s", data)
	}
	if Wrap(nil).Type != "empty" {
		t.Error("nil view should wrap as empty")
	}
}

func TestListFind(t *testing.T) {
	l := &List{Sections: []Section{
		{Title: "Pinned", Items: []Item{{ID: "b"}}},
		{Items: []Item{{ID: "a"}, {ID: "c"}}},
	}}
	if _, ok := l.Find("c"); !ok {
		t.Error("c not found")
	}
	if _, ok := l.Find("z"); ok {
		t.Error("z found")
	}
	if n := len(l.AllItems()); n != 3 {
		t.Errorf("AllItems = %d", n)
	}
}

func TestFormValidate(t *testing.T) {
	newForm := func() *Form {
		return &Form{Fields: []Field{
			{ID: "url", Kind: TextField, Title: "URL", Required: true, Rules: []Rule{URL}},
			{ID: "slug", Kind: TextField, Title: "Slug", Rules: []Rule{Pattern(`^[a-z0-9-]+$`, "Only lowercase letters, digits and dashes")}},
			{ID: "port", Kind: TextField, Title: "Port", Rules: []Rule{Integer(1, 65535)}},
		}}
	}

	tests := []struct {
		name   string
		values map[string]string
		errs   map[string]string
	}{
		{"valid", map[string]string{"url": "https://example.com", "slug": "my-link", "port": "22"}, nil},
		{"missing required", map[string]string{}, map[string]string{"url": "This field is required"}},
		{"bad url", map[string]string{"url": "example"}, map[string]string{"url": "Must be a valid URL"}},
		{"bad slug", map[string]string{"url": "http://x.io", "slug": "Bad Slug"}, map[string]string{"slug": "Only lowercase letters, digits and dashes"}},
		{"port range", map[string]string{"url": "http://x.io", "port": "70000"}, map[string]string{"port": "Must be between 1 and 65535"}},
		{"port nan", map[string]string{"url": "http://x.io", "port": "22a"}, map[string]string{"port": "Must be a number"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newForm()
			ok := f.Validate(tt.values)
			if ok != (len(tt.errs) == 0) {
				t.Fatalf("Validate = %v", ok)
			}
			for _, fld := range f.Fields {
				if fld.Error != tt.errs[fld.ID] {
					t.Errorf("%s error = %q, want %q", fld.ID, fld.Error, tt.errs[fld.ID])
				}
			}
		})
	}
}

func TestValidateKeepsValues(t *testing.T) {
	f := &Form{Fields: []Field{{ID: "a", Value: "keep"}, {ID: "b"}}}
	f.Validate(map[string]string{"b": "new"})
	if v := f.Values(); v["a"] != "keep" || v["b"] != "new" {
		t.Errorf("values = %v", v)
	}
}
