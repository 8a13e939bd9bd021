package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/extdeck/extdeck/extensions/all"
	"github.com/extdeck/extdeck/internal/config"
	"github.com/extdeck/extdeck/internal/host"
	"github.com/extdeck/extdeck/internal/scenario"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/view"
)

func TestParseArgs(t *testing.T) {
	cmd, args, path := parseArgs([]string{"--config", "/tmp/c.yaml", "run", "todoist", "tasks"})
	if cmd != "run" || path != "/tmp/c.yaml" || len(args) != 2 || args[0] != "todoist" {
		t.Errorf("unexpected parse: %q %v %q", cmd, args, path)
	}

	cmd, args, path = parseArgs(nil)
	if cmd != "" || args != nil || path != "" {
		t.Errorf("expected empty parse, got %q %v %q", cmd, args, path)
	}
}

func TestParseRunArgs(t *testing.T) {
	opts, err := parseRunArgs([]string{"todoist", "tasks", "filter=today", "--search", "milk", "--action", "complete:1", "--input", "note=a=b"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Extension != "todoist" || opts.Command != "tasks" || opts.Args["filter"] != "today" {
		t.Errorf("unexpected positional parse: %+v", opts)
	}
	if opts.Search == nil || *opts.Search != "milk" || opts.Filter != nil {
		t.Errorf("unexpected search/filter: %+v", opts)
	}
	if opts.Action != "complete:1" || opts.Input["note"] != "a=b" {
		t.Errorf("unexpected action: %+v", opts)
	}

	// An explicit empty search is kept.
	opts, err = parseRunArgs([]string{"wikipedia", "search", "--search", ""})
	if err != nil || opts.Search == nil || *opts.Search != "" {
		t.Errorf("expected empty search, got %+v %v", opts, err)
	}
}

func TestParseRunArgsErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"todoist"}, "usage: deck run"},
		{[]string{"todoist", "tasks", "filter"}, "not key=value"},
		{[]string{"todoist", "tasks", "--search"}, "needs a value"},
		{[]string{"todoist", "tasks", "--bogus", "x"}, "unknown flag --bogus"},
		{[]string{"todoist", "tasks", "--input", "novalue"}, "key=value"},
		{[]string{"todoist", "tasks", "--input", "a=b"}, "--input needs --action"},
	}
	for _, tt := range tests {
		_, err := parseRunArgs(tt.args)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("parseRunArgs(%v): expected error containing %q, got %v", tt.args, tt.want, err)
		}
	}
}

type echoScreen struct {
	env    *extension.Env
	search string
}

func (s *echoScreen) Render() view.View {
	return &view.List{Title: "echo " + s.env.Prefs.String("word"), SearchText: s.search}
}

func (s *echoScreen) Perform(_ context.Context, action string, input map[string]string) error {
	switch action {
	case "save":
		notify.Success(s.env.Notifier, "Saved", input["name"])
		return nil
	case "fail":
		err := errors.New("nope")
		s.env.Toast("Save failed", err)
		return err
	}
	return extension.UnknownAction(action)
}

func (s *echoScreen) Search(text string) { s.search = text }
func (s *echoScreen) Wait()              {}
func (s *echoScreen) Close()             {}

func echoLauncher(prefs map[string]string) *host.Launcher {
	return &host.Launcher{
		Registry: extension.NewRegistry(&extension.Extension{
			Name:        "echo",
			Preferences: []extension.PreferenceSpec{{Name: "word"}},
			Commands: []extension.Command{{
				Name: "show",
				Open: func(_ context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
					return &echoScreen{env: env}, nil
				},
			}},
		}),
		Store: kv.NewMemory(),
		Prefs: func(string, []extension.PreferenceSpec) map[string]string { return prefs },
	}
}

func TestRunPrintsEnvelopeAndToasts(t *testing.T) {
	var out, errOut bytes.Buffer
	search := "abc"
	opts := runOptions{Extension: "echo", Command: "show", Search: &search, Action: "save", Input: map[string]string{"name": "x"}}
	if err := run(context.Background(), echoLauncher(map[string]string{"word": "hi"}), opts, &out, &errOut); err != nil {
		t.Fatal(err)
	}

	var env struct {
		Type string    `json:"type"`
		View view.List `json:"view"`
	}
	if err := json.Unmarshal(out.Bytes(), &env); err != nil {
		t.Fatalf("stdout is not an envelope: %v\n%s", err, out.String())
	}
	if env.Type != "list" || env.View.Title != "echo hi" || env.View.SearchText != "abc" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if got := errOut.String(); got != "[success] Saved: x\n" {
		t.Errorf("unexpected toasts %q", got)
	}
}

func TestRunReturnsActionError(t *testing.T) {
	var out, errOut bytes.Buffer
	opts := runOptions{Extension: "echo", Command: "show", Action: "fail"}
	err := run(context.Background(), echoLauncher(nil), opts, &out, &errOut)
	if err == nil || err.Error() != "nope" {
		t.Fatalf("expected action error, got %v", err)
	}
	if !strings.Contains(errOut.String(), "[failure] Save failed: nope") {
		t.Errorf("expected failure toast, got %q", errOut.String())
	}
	if !strings.Contains(out.String(), `"type": "list"`) {
		t.Errorf("expected the view to be printed anyway, got %s", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), echoLauncher(nil), runOptions{Extension: "echo", Command: "nope"}, &bytes.Buffer{}, &bytes.Buffer{})
	if !errors.Is(err, extension.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPrefsFuncEnvOverride(t *testing.T) {
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("todoist.token", "from-file"); err != nil {
		t.Fatal(err)
	}
	env := map[string]string{"DECK_TODOIST_FILTER": "today"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	e, _ := all.Registry().Get("todoist")
	got := prefsFunc(cfg, lookup)("todoist", e.Preferences)
	if got["token"] != "from-file" || got["filter"] != "today" {
		t.Errorf("unexpected prefs: %v", got)
	}
}

func TestConfigSetShowUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := cmdConfig(cfg, []string{"set", "todoist.token", "secret-token-1234"}, &out); err != nil {
		t.Fatal(err)
	}
	if err := cmdConfig(cfg, []string{"set", "bridge_addr", "127.0.0.1:9000"}, &out); err != nil {
		t.Fatal(err)
	}

	reloaded, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := cmdConfig(reloaded, []string{"show"}, &out); err != nil {
		t.Fatal(err)
	}
	shown := out.String()
	if strings.Contains(shown, "secret-token-1234") || !strings.Contains(shown, "****1234") {
		t.Errorf("expected masked token in:\n%s", shown)
	}
	if !strings.Contains(shown, "127.0.0.1:9000") {
		t.Errorf("expected bridge addr in:\n%s", shown)
	}

	out.Reset()
	if err := cmdConfig(reloaded, []string{"unset", "todoist.token"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "Unset todoist.token\n" {
		t.Errorf("unexpected output %q", out.String())
	}
	out.Reset()
	if err := cmdConfig(reloaded, []string{"unset", "todoist.token"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "todoist.token was not set\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestConfigRejectsUnknownKeys(t *testing.T) {
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"set", "nope.token", "x"}, `unknown extension "nope"`},
		{[]string{"set", "todoist.colour", "x"}, `no preference "colour"`},
		{[]string{"set", "todoist.token"}, "usage"},
		{[]string{"frobnicate"}, "unknown config subcommand"},
		{nil, "usage"},
	}
	for _, tt := range tests {
		err := cmdConfig(cfg, tt.args, &bytes.Buffer{})
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("cmdConfig(%v): expected %q, got %v", tt.args, tt.want, err)
		}
	}
	if _, err := os.Stat(cfg.File()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no config file to be written, got %v", err)
	}
}

func TestList(t *testing.T) {
	var out bytes.Buffer
	if err := cmdList(&out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"todoist  ", "requires todoist.token", "minio  ", "anilist  "} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in listing:\n%s", want, out.String())
		}
	}
}

func TestCheckReport(t *testing.T) {
	scenarios := []*scenario.Scenario{
		{
			Name:      "Echo",
			Extension: "echo",
			Command:   "show",
			Steps: []scenario.Step{
				{Name: "title", Assert: &scenario.Assert{Snapshot: map[string]any{"$.view.view.title": "echo hi"}}},
				{Name: "save", Action: "save", Assert: &scenario.Assert{Toasts: []string{"Gone"}}},
			},
		},
		{Name: "Missing", Extension: "nope", Command: "show", Steps: []scenario.Step{{Name: "x"}}},
	}

	var out bytes.Buffer
	runner := scenario.NewRunner(echoLauncher(map[string]string{"word": "hi"}), nil)
	failed := check(context.Background(), runner, scenarios, &out)
	if failed != 2 {
		t.Errorf("expected 2 failures, got %d", failed)
	}
	report := out.String()
	for _, want := range []string{"--- Echo ---", "  PASS  title", "  FAIL  save", `expected toast "Gone"`, "Scenario: FAILED", "ERROR: opening nope show", "Results: 1 passed, 2 failed, 3 total"} {
		if !strings.Contains(report, want) {
			t.Errorf("expected %q in report:\n%s", want, report)
		}
	}
}

// slowScreen's Wait blocks until release is closed, like a running process.
type slowScreen struct {
	echoScreen
	release chan struct{}
}

func (s *slowScreen) Wait() { <-s.release }

func TestRunStopsWaitingOnInterrupt(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	l := echoLauncher(nil)
	l.Registry = extension.NewRegistry(&extension.Extension{
		Name: "slow",
		Commands: []extension.Command{{
			Name: "run",
			Open: func(_ context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
				return &slowScreen{echoScreen: echoScreen{env: env}, release: release}, nil
			},
		}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := run(ctx, l, runOptions{Extension: "slow", Command: "run"}, &bytes.Buffer{}, &bytes.Buffer{})
	if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "interrupted") {
		t.Errorf("expected interrupted error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("run kept waiting for %s after the context ended", elapsed)
	}
}
