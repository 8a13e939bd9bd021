package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/extdeck/extdeck/internal/host"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/fetch"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/view"
)

type pingScreen struct {
	env *extension.Env
}

func (s pingScreen) Render() view.View { return &view.Detail{Title: "ping", Markdown: "pong"} }

func (s pingScreen) Perform(_ context.Context, action string, _ map[string]string) error {
	if action != "ring" {
		return extension.UnknownAction(action)
	}
	notify.Success(s.env.Notifier, "Rang", "")
	return nil
}

func (pingScreen) Wait()  {}
func (pingScreen) Close() {}

func newBridge(t *testing.T) *BridgeClient {
	t.Helper()
	reg := extension.NewRegistry(&extension.Extension{
		Name:  "ping",
		Title: "Ping",
		Commands: []extension.Command{{
			Name:      "show",
			Title:     "Show",
			Arguments: []extension.Argument{{Name: "host", Required: true}},
			Open: func(_ context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
				return pingScreen{env: env}, nil
			},
		}},
	})
	srv := host.NewServer(&host.Launcher{Registry: reg, Store: kv.NewMemory()}, "1.2.3", nil, false)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	// Exercise the scheme-less form used by the config file.
	return New(strings.TrimPrefix(ts.URL, "http://"))
}

func TestHealth(t *testing.T) {
	b := newBridge(t)
	h, err := b.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Version != "1.2.3" || h.Sessions != 0 {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestHealthUnreachable(t *testing.T) {
	b := New("127.0.0.1:1")
	_, err := b.Health(context.Background())
	var te *fetch.TransportError
	if err == nil || !errors.As(err, &te) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestExtensions(t *testing.T) {
	b := newBridge(t)
	exts, err := b.Extensions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(exts) != 1 || exts[0].Name != "ping" || len(exts[0].Commands) != 1 {
		t.Fatalf("unexpected extensions: %+v", exts)
	}
	cmd := exts[0].Commands[0]
	if cmd.Name != "show" || len(cmd.Arguments) != 1 || !cmd.Arguments[0].Required {
		t.Errorf("unexpected command: %+v", cmd)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t)

	snap, err := b.Open(ctx, "ping", "show", map[string]string{"host": "example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(snap.View), `"type":"detail"`) {
		t.Errorf("unexpected view: %s", snap.View)
	}

	sessions, err := b.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != snap.ID || sessions[0].Extension != "ping" {
		t.Errorf("unexpected sessions: %+v", sessions)
	}

	after, err := b.Perform(ctx, snap.ID, "ring", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Toasts) != 1 || after.Toasts[0].Title != "Rang" {
		t.Errorf("unexpected toasts: %+v", after.Toasts)
	}

	if err := b.Close(ctx, snap.ID); err != nil {
		t.Fatal(err)
	}
	err = b.Close(ctx, snap.ID)
	if fetch.StatusCode(err) != 404 {
		t.Errorf("expected 404 on second close, got %v", err)
	}
}

func TestOpenMissingArgument(t *testing.T) {
	b := newBridge(t)
	_, err := b.Open(context.Background(), "ping", "show", nil)
	if fetch.StatusCode(err) != 400 {
		t.Fatalf("expected 400, got %v", err)
	}
	if !strings.Contains(fetch.Message(err), "missing argument host") {
		t.Errorf("unexpected message %q", fetch.Message(err))
	}
}
