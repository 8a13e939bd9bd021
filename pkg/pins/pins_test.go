package pins

import (
	"context"
	"slices"
	"testing"

	"github.com/extdeck/extdeck/pkg/kv"
)

type account struct {
	ID   string
	Name string
}

func accountID(a account) string { return a.ID }

func TestPinMovePartition(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), "pinned-accounts")

	for _, id := range []string{"B", "D"} {
		if _, err := s.Pin(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if moved, err := s.Move(ctx, "D", Up); err != nil || !moved {
		t.Fatalf("Move = %v, %v", moved, err)
	}

	ids, _ := s.IDs(ctx)
	if want := []string{"D", "B"}; !slices.Equal(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}

	items := []account{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}}
	pinned, rest := Partition(items, ids, accountID)
	if got := idsOf(pinned); !slices.Equal(got, []string{"D", "B"}) {
		t.Errorf("pinned = %v", got)
	}
	if got := idsOf(rest); !slices.Equal(got, []string{"A", "C"}) {
		t.Errorf("rest = %v", got)
	}
}

func TestPinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), "p")
	s.Pin(ctx, "x")
	changed, err := s.Pin(ctx, "x")
	if err != nil || changed {
		t.Fatalf("second Pin = %v, %v", changed, err)
	}
	changed, err = s.Unpin(ctx, "missing")
	if err != nil || changed {
		t.Fatalf("Unpin missing = %v, %v", changed, err)
	}
	got, _ := s.IDs(ctx)
	if !slices.Equal(got, []string{"x"}) {
		t.Errorf("ids = %v", got)
	}
}

func TestMoveAtEdgesIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), "p")
	s.Pin(ctx, "a")
	s.Pin(ctx, "b")

	tests := []struct {
		id   string
		dir  Direction
		want bool
	}{
		{"a", Up, false},
		{"b", Down, false},
		{"a", Down, true},
		{"zzz", Up, false},
	}
	for _, tt := range tests {
		can, err := s.CanMove(ctx, tt.id, tt.dir)
		if err != nil {
			t.Fatal(err)
		}
		if can != tt.want {
			t.Errorf("CanMove(%s, %v) = %v, want %v", tt.id, tt.dir, can, tt.want)
		}
	}

	before, _ := s.IDs(ctx)
	if moved, _ := s.Move(ctx, "a", Up); moved {
		t.Error("moving first item up should be a no-op")
	}
	after, _ := s.IDs(ctx)
	if !slices.Equal(before, after) {
		t.Errorf("order changed: %v -> %v", before, after)
	}
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), "p")
	if on, _ := s.Toggle(ctx, "a"); !on {
		t.Error("first toggle should pin")
	}
	if on, _ := s.Toggle(ctx, "a"); on {
		t.Error("second toggle should unpin")
	}
	if has, _ := s.Has(ctx, "a"); has {
		t.Error("a still pinned")
	}
}

func TestPartitionSkipsOrphans(t *testing.T) {
	items := []account{{ID: "A"}, {ID: "B"}}
	pinned, rest := Partition(items, []string{"gone", "B"}, accountID)
	if got := idsOf(pinned); !slices.Equal(got, []string{"B"}) {
		t.Errorf("pinned = %v", got)
	}
	if got := idsOf(rest); !slices.Equal(got, []string{"A"}) {
		t.Errorf("rest = %v", got)
	}
}

func TestPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	New(store, "p").Pin(ctx, "a")
	got, _ := New(store, "p").IDs(ctx)
	if !slices.Equal(got, []string{"a"}) {
		t.Errorf("ids = %v", got)
	}
}

func idsOf(as []account) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}

func TestMoveAmongStepsOverOrphans(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), "pinned-accounts")
	if err := kv.SetJSON(ctx, s.store, s.key, []string{"B", "gone", "J"}); err != nil {
		t.Fatal(err)
	}
	present := []string{"A", "B", "J"}

	if moved, err := s.MoveAmong(ctx, "B", Up, present); err != nil || moved {
		t.Fatalf("MoveAmong(B, Up) = %v, %v; only an orphan would be above", moved, err)
	}
	if moved, err := s.MoveAmong(ctx, "J", Up, present); err != nil || !moved {
		t.Fatalf("MoveAmong(J, Up) = %v, %v", moved, err)
	}
	ids, _ := s.IDs(ctx)
	if want := []string{"J", "gone", "B"}; !slices.Equal(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if moved, err := s.MoveAmong(ctx, "B", Down, present); err != nil || moved {
		t.Fatalf("MoveAmong(B, Down) = %v, %v", moved, err)
	}
}

func TestMovable(t *testing.T) {
	tests := []struct {
		visible  []string
		id       string
		up, down bool
	}{
		{nil, "A", false, false},
		{[]string{"A"}, "A", false, false},
		{[]string{"A", "B"}, "A", false, true},
		{[]string{"A", "B"}, "B", true, false},
		{[]string{"A", "B", "C"}, "B", true, true},
		{[]string{"A", "B"}, "Z", false, false},
	}
	for _, tt := range tests {
		up, down := Movable(tt.visible, tt.id)
		if up != tt.up || down != tt.down {
			t.Errorf("Movable(%v, %q) = %v, %v; want %v, %v", tt.visible, tt.id, up, down, tt.up, tt.down)
		}
	}
}
