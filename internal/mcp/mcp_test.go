package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/extdeck/extdeck/internal/host"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/view"
)

type greetScreen struct {
	env    *extension.Env
	search string
}

func (s *greetScreen) Render() view.View {
	return &view.List{
		Title:      "Greetings",
		SearchText: s.search,
		Sections:   []view.Section{{Items: []view.Item{{ID: "1", Title: "hello " + s.env.Prefs.StringOr("name", "world")}}}},
	}
}

func (s *greetScreen) Perform(_ context.Context, action string, input map[string]string) error {
	if action != "wave" {
		return extension.UnknownAction(action)
	}
	notify.Success(s.env.Notifier, "Waved", input["at"])
	return nil
}

func (s *greetScreen) Search(text string) { s.search = text }
func (s *greetScreen) Wait()              {}
func (s *greetScreen) Close()             {}

func newServer() *Server {
	reg := extension.NewRegistry(&extension.Extension{
		Name:  "greet",
		Title: "Greet",
		Commands: []extension.Command{{
			Name:      "list",
			Title:     "List Greetings",
			Arguments: []extension.Argument{{Name: "lang"}},
			Open: func(_ context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
				return &greetScreen{env: env}, nil
			},
		}},
	})
	l := &host.Launcher{
		Registry: reg,
		Store:    kv.NewMemory(),
		Prefs: func(string, []extension.PreferenceSpec) map[string]string {
			return map[string]string{"name": "deck"}
		},
	}
	return NewServer(l, "0.0.1", nil)
}

// roundTrip feeds lines to a server and returns the decoded responses.
func roundTrip(t *testing.T, lines ...string) []Response {
	t.Helper()
	var out bytes.Buffer
	if err := newServer().Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out); err != nil {
		t.Fatal(err)
	}
	var resps []Response
	sc := bufio.NewScanner(&out)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var r Response
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad response line %q: %v", sc.Text(), err)
		}
		resps = append(resps, r)
	}
	return resps
}

func resultText(t *testing.T, r Response) (string, bool) {
	t.Helper()
	data, _ := json.Marshal(r.Result)
	var tr ToolResult
	if err := json.Unmarshal(data, &tr); err != nil || len(tr.Content) != 1 {
		t.Fatalf("unexpected result %s: %v", data, err)
	}
	return tr.Content[0].Text, tr.IsError
}

func TestInitializeAndNotifications(t *testing.T) {
	resps := roundTrip(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/unknown"}`,
	)
	if len(resps) != 1 {
		t.Fatalf("expected 1 response, got %d", len(resps))
	}
	data, _ := json.Marshal(resps[0].Result)
	if !strings.Contains(string(data), `"name":"deck-mcp"`) || !strings.Contains(string(data), `"version":"0.0.1"`) {
		t.Errorf("unexpected initialize result: %s", data)
	}
}

func TestToolsList(t *testing.T) {
	resps := roundTrip(t, `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	data, _ := json.Marshal(resps[0].Result)
	for _, name := range []string{"deck_extensions", "deck_run"} {
		if !strings.Contains(string(data), `"name":"`+name+`"`) {
			t.Errorf("expected tool %s in %s", name, data)
		}
	}
	if string(resps[0].ID) != `"a"` {
		t.Errorf("expected id to be echoed, got %s", resps[0].ID)
	}
}

func TestErrors(t *testing.T) {
	resps := roundTrip(t,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"nope"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":"bad"}`,
	)
	want := []int{ErrCodeParse, ErrCodeNoMethod, ErrCodeNoMethod, ErrCodeInvalidParams}
	if len(resps) != len(want) {
		t.Fatalf("expected %d responses, got %d", len(want), len(resps))
	}
	for i, code := range want {
		if resps[i].Error == nil || resps[i].Error.Code != code {
			t.Errorf("response %d: expected code %d, got %+v", i, code, resps[i].Error)
		}
	}
}

func TestExtensionsTool(t *testing.T) {
	resps := roundTrip(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"deck_extensions"}}`)
	text, isErr := resultText(t, resps[0])
	if isErr || !strings.Contains(text, "greet  Greet") || !strings.Contains(text, "List Greetings [lang]") {
		t.Errorf("unexpected listing:\n%s", text)
	}
}

func TestRunTool(t *testing.T) {
	resps := roundTrip(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"deck_run","arguments":{"extension":"greet","command":"list","search":"hel","action":"wave","input":{"at":"you"}}}}`)
	text, isErr := resultText(t, resps[0])
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	for _, want := range []string{`"title": "hello deck"`, `"searchText": "hel"`, `"title": "Waved"`, `"message": "you"`, `"id": "mcp_000001"`} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %s in\n%s", want, text)
		}
	}
}

func TestRunToolErrors(t *testing.T) {
	resps := roundTrip(t,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"deck_run","arguments":{"extension":"greet"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"deck_run","arguments":{"extension":"nope","command":"list"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"deck_run","arguments":{"extension":"greet","command":"list","action":"jump"}}}`,
	)
	wants := []string{"'command' arguments are required", "extension nope", `"error": "action \"jump\": not found"`}
	for i, want := range wants {
		text, isErr := resultText(t, resps[i])
		if !isErr || !strings.Contains(text, want) {
			t.Errorf("call %d: expected error containing %q, got %q (isError=%v)", i+1, want, text, isErr)
		}
	}
}

func TestInvalidRequests(t *testing.T) {
	resps := roundTrip(t,
		`{"jsonrpc":"1.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2}`,
		`{"jsonrpc":"1.0","method":"notifications/initialized"}`,
	)
	if len(resps) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(resps))
	}
	for i, want := range []string{`unsupported jsonrpc version "1.0"`, "method is required"} {
		if resps[i].Error == nil || resps[i].Error.Code != ErrCodeInvalidReq || resps[i].Error.Message != want {
			t.Errorf("response %d: expected invalid request %q, got %+v", i, want, resps[i].Error)
		}
	}
}

func TestToolPanicIsInternalError(t *testing.T) {
	s := newServer()
	s.tools = append(s.tools, toolEntry{
		Tool: Tool{Name: "explode"},
		Handler: func(context.Context, *Server, json.RawMessage) ToolResult {
			panic("kaboom")
		},
	})
	var out bytes.Buffer
	in := `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"explode"}}` + "\n"
	if err := s.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeInternal || resp.Error.Data != "kaboom" {
		t.Errorf("expected internal error carrying the panic, got %+v", resp.Error)
	}
}
