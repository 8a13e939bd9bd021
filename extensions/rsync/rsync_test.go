package rsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extdeck/extdeck/internal/procrun"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/testutil"
	"github.com/extdeck/extdeck/pkg/transform"
	"github.com/extdeck/extdeck/pkg/view"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "''"},
		{"plain/path-1.txt", "plain/path-1.txt"},
		{"user@host:/backup/", "user@host:/backup/"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
		{"*.tmp", "'*.tmp'"},
		{"$HOME", "'$HOME'"},
		{"~/docs/", "~/docs/"},
		{"~/My Docs", "~/'My Docs'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, quote(tt.in), tt.in)
	}
}

func TestCommandLine(t *testing.T) {
	e := Entry{
		Source:      "~/My Photos/",
		Destination: "me@nas:/backup/photos",
		Flags:       []string{"-avz", "--progress"},
		Excludes:    []string{".DS_Store", "*.tmp"},
		SSHPort:     2222,
		Delete:      true,
		DryRun:      true,
	}
	assert.Equal(t,
		`rsync -avz --progress --delete --dry-run --exclude=.DS_Store --exclude='*.tmp' -e 'ssh -p 2222' ~/'My Photos/' me@nas:/backup/photos`,
		CommandLine("rsync", e))
}

func TestEntryFromValues(t *testing.T) {
	e := entryFromValues(map[string]string{
		"source": " src/ ", "destination": "dst/", "flags": "-a  -v",
		"excludes": "a, b\nc\n\n", "ssh_port": "", "delete": "true", "dry_run": "false",
	})
	assert.Equal(t, "src/ → dst/", e.Name)
	assert.Equal(t, []string{"-a", "-v"}, e.Flags)
	assert.Equal(t, []string{"a", "b", "c"}, e.Excludes)
	assert.Zero(t, e.SSHPort)
	assert.True(t, e.Delete)
	assert.False(t, e.DryRun)
}

func TestCreateValidatesAndSaves(t *testing.T) {
	h := testutil.NewHarness(t, "rsync", nil)
	s := h.Open(New(), "create", nil)
	assert.Equal(t, "-avz", testutil.Form(t, s).Field("flags").Value)

	err := s.Perform(context.Background(), "save", map[string]string{
		"source": "", "destination": "--rsh=evil", "flags": "avz", "ssh_port": "99999",
	})
	require.ErrorIs(t, err, view.ErrInvalid)
	f := testutil.Form(t, s)
	assert.Equal(t, "This field is required", f.Field("source").Error)
	assert.Equal(t, "Must not start with -", f.Field("destination").Error)
	assert.Equal(t, "Every flag must start with -", f.Field("flags").Error)
	assert.Equal(t, "Must be between 1 and 65535", f.Field("ssh_port").Error)
	assert.Equal(t, "avz", f.Field("flags").Value, "invalid input is kept for correction")
	testutil.AssertNoToasts(t, h.Toasts)

	require.NoError(t, s.Perform(context.Background(), "save", map[string]string{
		"name": "Photos", "source": "~/Pictures/", "destination": "nas:/photos/", "flags": "-av", "ssh_port": "22",
	}))
	toast := testutil.AssertToast(t, h.Toasts, notify.StyleSuccess, "Command saved")
	assert.Equal(t, "Photos", toast.Message)
	assert.Empty(t, testutil.Form(t, s).Field("source").Value)
	assert.Empty(t, testutil.Form(t, s).Field("source").Error)

	entries, err := newLibrary(h.Env).list(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rs_000001", entries[0].ID)
	assert.Equal(t, 22, entries[0].SSHPort)
}

func seed(t *testing.T, h *testutil.Harness, names ...string) {
	t.Helper()
	lib := newLibrary(h.Env)
	for _, n := range names {
		_, err := lib.add(context.Background(), Entry{Name: n, Source: n + "/", Destination: "backup:/" + n})
		require.NoError(t, err)
	}
}

func TestCommandsPinSearchAndDelete(t *testing.T) {
	h := testutil.NewHarness(t, "rsync", nil)
	seed(t, h, "docs", "photos", "music")
	s := h.Open(New(), "commands", nil)

	l := testutil.List(t, s)
	assert.Equal(t, []string{"rs_000001", "rs_000002", "rs_000003"}, testutil.ItemIDs(l))

	require.NoError(t, s.Perform(context.Background(), "pin:rs_000002", nil))
	l = testutil.List(t, s)
	assert.Equal(t, "Pinned", l.Sections[0].Title)
	assert.Equal(t, []string{"rs_000002", "rs_000001", "rs_000003"}, testutil.ItemIDs(l))

	s.(extension.Searchable).Search("PHO")
	assert.Equal(t, []string{"rs_000002"}, testutil.ItemIDs(testutil.List(t, s)))
	s.(extension.Searchable).Search("")

	require.NoError(t, s.Perform(context.Background(), "delete:rs_000002", nil))
	assert.Equal(t, []string{"rs_000001", "rs_000003"}, testutil.ItemIDs(testutil.List(t, s)))
	testutil.AssertToast(t, h.Toasts, notify.StyleSuccess, "Command deleted")

	pinned, err := s.(*commandsScreen).pins.IDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pinned)

	s2 := h.Open(New(), "commands", nil)
	assert.Equal(t, []string{"rs_000001", "rs_000003"}, testutil.ItemIDs(testutil.List(t, s2)))
}

func TestMoveStepsOverDeletedPins(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness(t, "rsync", nil)
	seed(t, h, "docs", "photos")
	require.NoError(t, kv.SetJSON(ctx, kv.Prefix(h.Store, "rsync"), pinsKey, []string{"rs_000099", "rs_000002"}))
	s := h.Open(New(), "commands", nil)

	l := testutil.List(t, s)
	assert.Equal(t, []string{"rs_000002", "rs_000001"}, testutil.ItemIDs(l))
	photos, _ := l.Find("rs_000002")
	titles := transform.Map(photos.Actions, func(a view.Action) string { return a.Title })
	assert.NotContains(t, titles, "Move Up")
	assert.NotContains(t, titles, "Move Down")

	require.NoError(t, s.Perform(ctx, "move-up:rs_000002", nil))
	require.NoError(t, s.Perform(ctx, "pin:rs_000001", nil))
	require.NoError(t, s.Perform(ctx, "move-up:rs_000001", nil))
	assert.Equal(t, []string{"rs_000001", "rs_000002"}, testutil.ItemIDs(testutil.List(t, s)))

	pinned, err := s.(*commandsScreen).pins.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rs_000099", "rs_000001", "rs_000002"}, pinned)
}

func TestEmptyLibrary(t *testing.T) {
	h := testutil.NewHarness(t, "rsync", nil)
	l := testutil.List(t, h.Open(New(), "commands", nil))
	require.NotNil(t, l.Empty)
	assert.Equal(t, "No saved commands", l.Empty.Title)
}

func TestRunStreamsOutput(t *testing.T) {
	h := testutil.NewHarness(t, "rsync", map[string]string{"rsync_path": "echo"})
	seed(t, h, "docs")
	s := h.Open(New(), "run", map[string]string{"id": "rs_000001"})

	out, ok := s.Render().(*view.Output)
	require.True(t, ok)
	assert.Equal(t, string(procrun.Succeeded), out.State)
	assert.Equal(t, "docs/ backup:/docs\n", out.Log)
	assert.Equal(t, "retry", out.Actions[0].ID)
	toast := testutil.AssertToast(t, h.Toasts, notify.StyleSuccess, "Sync finished")
	assert.Equal(t, "docs", toast.Message)

	e, err := newLibrary(h.Env).get(context.Background(), "rs_000001")
	require.NoError(t, err)
	assert.False(t, e.LastRunAt.IsZero())
}

func TestRunFailureToastAndRetry(t *testing.T) {
	h := testutil.NewHarness(t, "rsync", map[string]string{"rsync_path": "false"})
	seed(t, h, "docs")
	s := h.Open(New(), "run", map[string]string{"id": "rs_000001"})

	out := s.Render().(*view.Output)
	assert.Equal(t, string(procrun.Failed), out.State)
	assert.Equal(t, 1, out.ExitCode)
	toast := testutil.AssertToast(t, h.Toasts, notify.StyleFailure, "rsync failed")
	assert.Equal(t, "exit status 1", toast.Message)
	assert.Len(t, h.Toasts.Toasts(), 1)

	require.NoError(t, s.Perform(context.Background(), "retry", nil))
	s.Wait()
	out = s.Render().(*view.Output)
	assert.Equal(t, string(procrun.Failed), out.State)
	assert.Equal(t, 1, out.Retries)
	assert.Len(t, h.Toasts.Toasts(), 2, "each finished run reports once")
}

func TestRunUnknownCommand(t *testing.T) {
	h := testutil.NewHarness(t, "rsync", nil)
	cmd, err := New().Command("run")
	require.NoError(t, err)
	_, err = cmd.Open(context.Background(), h.Env, map[string]string{"id": "rs_404"})
	assert.ErrorIs(t, err, extension.ErrNotFound)
}
