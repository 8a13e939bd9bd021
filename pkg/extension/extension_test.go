package extension

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/extdeck/extdeck/pkg/view"
)

type nopScreen struct{}

func (nopScreen) Render() view.View                                        { return &view.List{} }
func (nopScreen) Perform(context.Context, string, map[string]string) error { return nil }
func (nopScreen) Wait()                                                    {}
func (nopScreen) Close()                                                   {}

func testExtension(name string) *Extension {
	return &Extension{
		Name: name,
		Commands: []Command{{
			Name:      "list",
			Arguments: []Argument{{Name: "filter"}, {Name: "project", Required: true}},
			Open: func(context.Context, *Env, map[string]string) (Screen, error) {
				return nopScreen{}, nil
			},
		}},
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(testExtension("b"), testExtension("a"))

	names := []string{}
	for _, e := range r.List() {
		names = append(names, e.Name)
	}
	if !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("List = %v", names)
	}

	if _, _, err := r.Lookup("a", "list"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Lookup("a", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown command err = %v", err)
	}
	if _, err := r.Get("zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown extension err = %v", err)
	}
	if err := r.Register(testExtension("a")); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestCheckArgs(t *testing.T) {
	_, cmd, _ := NewRegistry(testExtension("a")).Lookup("a", "list")
	if err := cmd.CheckArgs(map[string]string{"project": "inbox"}); err != nil {
		t.Errorf("CheckArgs = %v", err)
	}
	if err := cmd.CheckArgs(map[string]string{"filter": "today"}); err == nil {
		t.Error("missing project should fail")
	}
}

func TestResolvePreferences(t *testing.T) {
	specs := []PreferenceSpec{
		{Name: "token", Required: true, Secret: true},
		{Name: "language", Default: "en"},
		{Name: "limit"},
	}

	p, err := Resolve("wiki", specs, map[string]string{"token": "t", "limit": "20"})
	if err != nil {
		t.Fatal(err)
	}
	if p.String("language") != "en" || p.Int("limit", 5) != 20 || p.Int("missing", 5) != 5 {
		t.Errorf("prefs = %+v", p)
	}

	_, err = Resolve("wiki", specs, nil)
	var mpe *MissingPreferenceError
	if !errors.As(err, &mpe) || !slices.Equal(mpe.Names, []string{"token"}) {
		t.Errorf("err = %v", err)
	}
}

func TestPreferencesAreCopied(t *testing.T) {
	src := map[string]string{"k": "v"}
	p := NewPreferences(src)
	src["k"] = "changed"
	if p.String("k") != "v" {
		t.Error("preferences must not alias the source map")
	}
}

func TestPreferenceList(t *testing.T) {
	p := NewPreferences(map[string]string{"channels": " a, ,b ,c"})
	if got := p.List("channels"); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("List = %v", got)
	}
	if p.Bool("nope") {
		t.Error("unset bool should be false")
	}
}

func TestActionIDRoundTrip(t *testing.T) {
	id := ActionID("open", "s3://bucket/a:b", "x")
	verb, ops := ParseAction(id)
	if verb != "open" || !slices.Equal(ops, []string{"s3://bucket/a:b", "x"}) {
		t.Errorf("ParseAction(%q) = %q %q", id, verb, ops)
	}
	verb, ops = ParseAction("refresh")
	if verb != "refresh" || len(ops) != 0 {
		t.Errorf("ParseAction(refresh) = %q %q", verb, ops)
	}
}
