package testutil

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/extdeck/extdeck/pkg/cache"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/view"
)

// Harness is an in-memory environment for opening extension commands.
type Harness struct {
	t      testing.TB
	Store  *kv.Memory
	Clock  *cache.SimClock
	Toasts *notify.Recorder
	Env    *extension.Env
}

// NewHarness builds an Env for ext with prefs, an in-memory store, a
// simulated clock and a recording notifier.
func NewHarness(t testing.TB, ext string, prefs map[string]string) *Harness {
	t.Helper()
	store := kv.NewMemory()
	clock := cache.NewSimClock()
	rec := &notify.Recorder{}
	return &Harness{
		t:      t,
		Store:  store,
		Clock:  clock,
		Toasts: rec,
		Env: &extension.Env{
			Extension: ext,
			Prefs:     extension.NewPreferences(prefs),
			Store:     kv.Prefix(store, ext),
			Cache:     cache.New(kv.Prefix(store, ext), cache.WithClock(clock)),
			Notifier:  rec,
			Logger:    slog.New(slog.DiscardHandler),
			HTTP:      http.DefaultClient,
		},
	}
}

// Open runs cmd of e with args and waits for its first fetch to settle.
// The screen is closed when the test ends.
func (h *Harness) Open(e *extension.Extension, cmd string, args map[string]string) extension.Screen {
	h.t.Helper()
	c, err := e.Command(cmd)
	if err != nil {
		h.t.Fatal(err)
	}
	s, err := c.Open(context.Background(), h.Env, args)
	if err != nil {
		h.t.Fatalf("opening %s/%s: %v", e.Name, cmd, err)
	}
	h.t.Cleanup(s.Close)
	s.Wait()
	return s
}

// List renders s and asserts it is a list.
func List(t testing.TB, s extension.Screen) *view.List {
	t.Helper()
	l, ok := s.Render().(*view.List)
	if !ok {
		t.Fatalf("rendered %T, want *view.List", s.Render())
	}
	return l
}

// Form renders s and asserts it is a form.
func Form(t testing.TB, s extension.Screen) *view.Form {
	t.Helper()
	f, ok := s.Render().(*view.Form)
	if !ok {
		t.Fatalf("rendered %T, want *view.Form", s.Render())
	}
	return f
}

// Detail renders s and asserts it is a detail.
func Detail(t testing.TB, s extension.Screen) *view.Detail {
	t.Helper()
	d, ok := s.Render().(*view.Detail)
	if !ok {
		t.Fatalf("rendered %T, want *view.Detail", s.Render())
	}
	return d
}

// ItemIDs returns the IDs of every item in l, section by section.
func ItemIDs(l *view.List) []string {
	ids := []string{}
	for _, it := range l.AllItems() {
		ids = append(ids, it.ID)
	}
	return ids
}

// AssertToast asserts the last toast has style and a title containing title.
func AssertToast(t testing.TB, rec *notify.Recorder, style notify.Style, title string) notify.Toast {
	t.Helper()
	toast, ok := rec.Last()
	if !ok {
		t.Fatalf("expected a %s toast containing %q, got none", style, title)
	}
	if toast.Style != style || !strings.Contains(toast.Title, title) {
		t.Errorf("expected %s toast containing %q, got %+v", style, title, toast)
	}
	return toast
}

// AssertNoToasts asserts nothing was notified.
func AssertNoToasts(t testing.TB, rec *notify.Recorder) {
	t.Helper()
	if toasts := rec.Toasts(); len(toasts) > 0 {
		t.Errorf("expected no toasts, got %+v", toasts)
	}
}
