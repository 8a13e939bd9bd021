package testutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fakeapi"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/view"
)

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		fakeapi.JSON(w, http.StatusOK, []map[string]string{{"id": "1"}, {"id": "2"}})
	})
	mux.HandleFunc("POST /items", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if !fakeapi.Decode(w, r, &body) {
			return
		}
		body["id"] = "new_1"
		fakeapi.JSON(w, http.StatusCreated, body)
	})
	mux.HandleFunc("DELETE /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return httptest.NewServer(mux)
}

func TestClientRoundTrips(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := NewClient(t, srv)

	var items []map[string]string
	c.Get("/items").AssertStatus(http.StatusOK).JSON(&items)
	if len(items) != 2 {
		t.Errorf("items = %v", items)
	}

	m := c.Post("/items", map[string]string{"name": "x"}).
		AssertStatus(http.StatusCreated).
		AssertBodyContains("new_1").
		JSONMap()
	if m["name"] != "x" {
		t.Errorf("created = %v", m)
	}

	c.Delete("/items/1").AssertStatus(http.StatusNoContent)
}

func TestNewClientURLTrimsSlash(t *testing.T) {
	c := NewClientURL(t, "http://localhost:1234/")
	if c.BaseURL != "http://localhost:1234" {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
}

func TestEventually(t *testing.T) {
	var n atomic.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		n.Store(1)
	}()
	Eventually(t, time.Second, func() bool { return n.Load() == 1 }, "flag set")
}

type listScreen struct{ items []view.Item }

func (s listScreen) Render() view.View {
	return &view.List{Sections: []view.Section{{Items: s.items}}}
}
func (listScreen) Perform(context.Context, string, map[string]string) error { return nil }
func (listScreen) Wait()                                                    {}
func (listScreen) Close()                                                   {}

func TestHarnessOpen(t *testing.T) {
	h := NewHarness(t, "demo", map[string]string{"greeting": "hi"})
	ext := &extension.Extension{
		Name: "demo",
		Commands: []extension.Command{{
			Name: "list",
			Open: func(ctx context.Context, env *extension.Env, args map[string]string) (extension.Screen, error) {
				if err := kv.SetJSON(ctx, env.Store, "seen", args["q"]); err != nil {
					return nil, err
				}
				env.Toast("Failed to load", errors.New("nope"))
				return listScreen{items: []view.Item{{ID: env.Prefs.String("greeting")}}}, nil
			},
		}},
	}

	s := h.Open(ext, "list", map[string]string{"q": "x"})
	if got := ItemIDs(List(t, s)); !slices.Equal(got, []string{"hi"}) {
		t.Errorf("ids = %v", got)
	}
	if _, ok, _ := h.Store.Get(context.Background(), "demo:seen"); !ok {
		t.Error("store writes should be namespaced under the extension")
	}
	AssertToast(t, h.Toasts, notify.StyleFailure, "Failed to load")
}
