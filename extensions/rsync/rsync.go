// Package rsync saves rsync invocations and runs them locally with live
// output.
package rsync

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/extdeck/extdeck/internal/procrun"
	"github.com/extdeck/extdeck/pkg/binding"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/pins"
	"github.com/extdeck/extdeck/pkg/transform"
	"github.com/extdeck/extdeck/pkg/view"
)

const pinsKey = "pinned-commands"

// New returns the extension definition.
func New() *extension.Extension {
	return &extension.Extension{
		Name:        "rsync",
		Title:       "Rsync",
		Description: "Save and run rsync commands",
		Preferences: []extension.PreferenceSpec{
			{Name: "rsync_path", Title: "rsync Executable", Default: "rsync"},
			{Name: "working_dir", Title: "Working Directory", Description: "Relative paths are resolved here"},
		},
		Commands: []extension.Command{
			{Name: "create", Title: "Create Command", Open: openCreate},
			{Name: "commands", Title: "Saved Commands", Open: openCommands},
			{
				Name:      "run",
				Title:     "Run Command",
				Arguments: []extension.Argument{{Name: "id", Required: true}},
				Open:      openRun,
			},
		},
	}
}

func newLibrary(env *extension.Env) *library {
	return &library{store: env.Store, now: time.Now}
}

func rsyncPath(env *extension.Env) string {
	return env.Prefs.StringOr("rsync_path", "rsync")
}

type createScreen struct {
	env *extension.Env
	lib *library

	mu     sync.Mutex
	values map[string]string
	errors map[string]string
}

func openCreate(_ context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	return &createScreen{env: env, lib: newLibrary(env), values: defaultValues()}, nil
}

func defaultValues() map[string]string {
	return map[string]string{"flags": "-avz", "delete": "false", "dry_run": "false"}
}

var notOption = view.Pattern(`^[^-]`, "Must not start with -")

func newForm() *view.Form {
	return &view.Form{
		Title: "Create rsync Command",
		Fields: []view.Field{
			{ID: "name", Kind: view.TextField, Title: "Name", Placeholder: "Backup photos"},
			{ID: "source", Kind: view.TextField, Title: "Source", Placeholder: "~/Pictures/", Required: true, Rules: []view.Rule{notOption}},
			{ID: "destination", Kind: view.TextField, Title: "Destination", Placeholder: "user@host:/backup/", Required: true, Rules: []view.Rule{notOption}},
			{ID: "flags", Kind: view.TextField, Title: "Flags", Info: "Space separated, e.g. -avz --progress",
				Rules: []view.Rule{view.Pattern(`^\s*(-\S+\s*)*$`, "Every flag must start with -")}},
			{ID: "excludes", Kind: view.TextArea, Title: "Exclude", Info: "One pattern per line"},
			{ID: "ssh_port", Kind: view.TextField, Title: "SSH Port", Placeholder: "22", Rules: []view.Rule{view.Integer(1, 65535)}},
			{ID: "delete", Kind: view.Checkbox, Title: "Delete extraneous files from destination"},
			{ID: "dry_run", Kind: view.Checkbox, Title: "Dry run"},
		},
		Submit: view.Action{ID: "save", Title: "Save Command", Kind: view.Submit},
	}
}

func (s *createScreen) Render() view.View {
	f := newForm()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range f.Fields {
		f.Fields[i].Value = s.values[f.Fields[i].ID]
		f.Fields[i].Error = s.errors[f.Fields[i].ID]
	}
	return f
}

func (s *createScreen) Perform(ctx context.Context, action string, input map[string]string) error {
	if action != "save" {
		return extension.UnknownAction(action)
	}
	f := newForm()
	ok := f.Validate(input)

	s.mu.Lock()
	s.values = f.Values()
	s.errors = map[string]string{}
	for _, fld := range f.Fields {
		if fld.Error != "" {
			s.errors[fld.ID] = fld.Error
		}
	}
	s.mu.Unlock()
	if !ok {
		s.env.Changed()
		return view.ErrInvalid
	}

	e, err := s.lib.add(ctx, entryFromValues(f.Values()))
	if err != nil {
		s.env.Toast("Failed to save command", err)
		return err
	}
	notify.Success(s.env.Notifier, "Command saved", e.Name)

	s.mu.Lock()
	s.values = defaultValues()
	s.mu.Unlock()
	s.env.Changed()
	return nil
}

func (s *createScreen) Wait()  {}
func (s *createScreen) Close() {}

type commandsScreen struct {
	env     *extension.Env
	lib     *library
	pins    *pins.Set
	entries *binding.Binding[struct{}, []Entry]

	mu     sync.Mutex
	pinned []string
	search string
}

func openCommands(ctx context.Context, env *extension.Env, _ map[string]string) (extension.Screen, error) {
	s := &commandsScreen{env: env, lib: newLibrary(env), pins: pins.New(env.Store, pinsKey)}
	var err error
	if s.pinned, err = s.pins.IDs(ctx); err != nil {
		return nil, fmt.Errorf("loading pins: %w", err)
	}
	s.entries = binding.New(func(ctx context.Context, _ struct{}) ([]Entry, error) {
		return s.lib.list(ctx)
	}, []Entry{},
		binding.WithNotifier(env.Notifier, "Failed to load saved commands"),
		binding.WithOnChange(env.Changed),
		binding.WithLogger(env.Logger),
	)
	s.entries.Update(struct{}{})
	return s, nil
}

func (s *commandsScreen) Search(text string) {
	s.mu.Lock()
	s.search = text
	s.mu.Unlock()
	s.env.Changed()
}

func (s *commandsScreen) Render() view.View {
	st := s.entries.State()
	s.mu.Lock()
	pinned := slices.Clone(s.pinned)
	search := s.search
	s.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	entries := transform.Filter(st.Data, func(e Entry) bool {
		return needle == "" || strings.Contains(strings.ToLower(e.Name+" "+e.Source+" "+e.Destination), needle)
	})
	pinnedEntries, rest := pins.Partition(entries, pinned, entryID)
	// Moves are decided on every pinned entry that still exists, not just
	// the ones matching the search.
	order, _ := pins.Partition(st.Data, pinned, entryID)
	shown := transform.Map(order, entryID)

	path := rsyncPath(s.env)
	item := func(e Entry) view.Item { return entryItem(path, shown, e) }
	l := &view.List{
		Title:             "Saved Commands",
		IsLoading:         st.IsLoading,
		SearchText:        search,
		SearchPlaceholder: "Search commands",
		Sections: []view.Section{
			{Title: "Pinned", Items: transform.Map(pinnedEntries, item)},
			{Title: "Commands", Items: transform.Map(rest, item)},
		},
	}
	if len(entries) == 0 && !st.IsLoading {
		l.Empty = &view.Empty{Title: "No saved commands", Description: "Create one with the Create Command command"}
	}
	return l
}

func entryItem(path string, pinned []string, e Entry) view.Item {
	line := CommandLine(path, e)
	it := view.Item{
		ID:       e.ID,
		Title:    e.Name,
		Subtitle: transform.Truncate(e.Source+" → "+e.Destination, 80),
		Icon:     &view.Icon{Source: "terminal"},
		Keywords: []string{e.Source, e.Destination},
		Actions: []view.Action{
			view.PushAction("Run", "run", map[string]string{"id": e.ID}),
			view.CopyAction("Copy Command", line),
		},
		Detail: &view.Detail{Markdown: "```sh\n" + line + "\n```"},
	}
	if e.DryRun {
		it.Accessories = append(it.Accessories, view.Accessory{Tag: "dry run"})
	}
	if !e.LastRunAt.IsZero() {
		it.Accessories = append(it.Accessories, view.Accessory{Date: e.LastRunAt.Format(time.RFC3339), Tooltip: "Last run"})
	}

	if !slices.Contains(pinned, e.ID) {
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("pin", e.ID), "Pin").WithShortcut("cmd+shift+p"))
	} else {
		it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("unpin", e.ID), "Unpin").WithShortcut("cmd+shift+p"))
		up, down := pins.Movable(pinned, e.ID)
		if up {
			it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("move-up", e.ID), "Move Up"))
		}
		if down {
			it.Actions = append(it.Actions, view.PerformAction(extension.ActionID("move-down", e.ID), "Move Down"))
		}
	}
	it.Actions = append(it.Actions,
		view.PerformAction(extension.ActionID("delete", e.ID), "Delete Command").Destructive().WithShortcut("ctrl+x"))
	return it
}

func (s *commandsScreen) Perform(ctx context.Context, action string, _ map[string]string) error {
	verb, ops := extension.ParseAction(action)
	if verb == "refresh" {
		s.entries.Revalidate()
		return nil
	}
	if len(ops) != 1 {
		return extension.UnknownAction(action)
	}
	id := ops[0]

	var err error
	switch verb {
	case "pin":
		_, err = s.pins.Pin(ctx, id)
	case "unpin":
		_, err = s.pins.Unpin(ctx, id)
	case "move-up":
		_, err = s.pins.MoveAmong(ctx, id, pins.Up, s.entryIDs())
	case "move-down":
		_, err = s.pins.MoveAmong(ctx, id, pins.Down, s.entryIDs())
	case "delete":
		return s.delete(ctx, id)
	default:
		return extension.UnknownAction(action)
	}
	if err != nil {
		s.env.Toast("Failed to update pins", err)
		return err
	}
	return s.reloadPins(ctx)
}

func entryID(e Entry) string { return e.ID }

func (s *commandsScreen) entryIDs() []string {
	return transform.Map(s.entries.State().Data, entryID)
}

func (s *commandsScreen) reloadPins(ctx context.Context) error {
	ids, err := s.pins.IDs(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pinned = ids
	s.mu.Unlock()
	s.env.Changed()
	return nil
}

func (s *commandsScreen) delete(ctx context.Context, id string) error {
	err := s.entries.Mutate(ctx, binding.Mutation[[]Entry]{
		Optimistic: func(es []Entry) []Entry {
			return transform.Remove(es, func(e Entry) bool { return e.ID == id })
		},
		Commit: func(ctx context.Context) (func([]Entry) []Entry, error) {
			if err := s.lib.remove(ctx, id); err != nil {
				return nil, err
			}
			_, err := s.pins.Unpin(ctx, id)
			return nil, err
		},
		FailureTitle: "Failed to delete command",
	})
	if err != nil {
		return err
	}
	notify.Success(s.env.Notifier, "Command deleted", "")
	return s.reloadPins(ctx)
}

func (s *commandsScreen) Wait()  { s.entries.Wait() }
func (s *commandsScreen) Close() { s.entries.Close() }

type runScreen struct {
	env    *extension.Env
	lib    *library
	entry  Entry
	runner *procrun.Runner

	mu       sync.Mutex
	reported int
}

func openRun(ctx context.Context, env *extension.Env, args map[string]string) (extension.Screen, error) {
	lib := newLibrary(env)
	e, err := lib.get(ctx, args["id"])
	if err != nil {
		return nil, err
	}
	s := &runScreen{env: env, lib: lib, entry: e, reported: -1}

	opts := []procrun.Option{
		procrun.WithOnChange(s.changed),
		procrun.WithLogger(env.Log()),
	}
	if dir := env.Prefs.String("working_dir"); dir != "" {
		opts = append(opts, procrun.WithDir(dir))
	}
	s.runner = procrun.New(CommandLine(rsyncPath(env), e), opts...)
	if err := s.runner.Start(); err != nil {
		return nil, err
	}
	if err := lib.touch(ctx, e.ID); err != nil {
		env.Log().Warn("recording last run", "id", e.ID, "err", err)
	}
	return s, nil
}

func (s *runScreen) changed() {
	s.report(s.runner.Snapshot())
	s.env.Changed()
}

// report notifies once per finished run.
func (s *runScreen) report(snap procrun.Snapshot) {
	if !snap.State.Terminal() {
		return
	}
	s.mu.Lock()
	if s.reported == snap.Retries {
		s.mu.Unlock()
		return
	}
	s.reported = snap.Retries
	s.mu.Unlock()

	if snap.State == procrun.Failed {
		s.env.Toast("rsync failed", fmt.Errorf("exit status %d", snap.ExitCode))
		return
	}
	notify.Success(s.env.Notifier, "Sync finished", s.entry.Name)
}

func (s *runScreen) Render() view.View {
	snap := s.runner.Snapshot()
	out := &view.Output{
		Title:    s.entry.Name,
		State:    string(snap.State),
		Log:      snap.Output,
		ExitCode: snap.ExitCode,
		Retries:  snap.Retries,
	}
	if snap.State.Terminal() {
		out.Actions = append(out.Actions, view.PerformAction("retry", "Retry").WithShortcut("cmd+r"))
	}
	out.Actions = append(out.Actions,
		view.CopyAction("Copy Output", snap.Output),
		view.CopyAction("Copy Command", snap.Command).WithShortcut("cmd+shift+c"),
	)
	return out
}

func (s *runScreen) Perform(ctx context.Context, action string, _ map[string]string) error {
	if action != "retry" {
		return extension.UnknownAction(action)
	}
	if err := s.runner.Retry(); err != nil {
		return err
	}
	if err := s.lib.touch(ctx, s.entry.ID); err != nil {
		s.env.Log().Warn("recording last run", "id", s.entry.ID, "err", err)
	}
	return nil
}

func (s *runScreen) Wait() {
	s.report(s.runner.Wait())
}

// Close leaves a running command to finish on its own.
func (s *runScreen) Close() {}
