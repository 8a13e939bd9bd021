// Package pins keeps an ordered, persisted set of pinned item IDs and
// splits lists into pinned and unpinned sections.
package pins

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/extdeck/extdeck/pkg/kv"
)

// Direction is a reorder direction.
type Direction int

const (
	Up Direction = iota
	Down
)

// Set is an ordered list of pinned IDs stored as one JSON array under key.
// IDs are unique. Pinning appends to the end.
type Set struct {
	mu    sync.Mutex
	store kv.Store
	key   string
}

// New returns the pin set stored at key.
func New(store kv.Store, key string) *Set {
	return &Set{store: store, key: key}
}

// IDs returns the pinned IDs in pin order.
func (s *Set) IDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Has reports whether id is pinned.
func (s *Set) Has(ctx context.Context, id string) (bool, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, id), nil
}

// Pin appends id. Pinning an already pinned ID is a no-op and returns false.
func (s *Set) Pin(ctx context.Context, id string) (bool, error) {
	return s.update(ctx, func(ids []string) ([]string, bool) {
		if slices.Contains(ids, id) {
			return ids, false
		}
		return append(ids, id), true
	})
}

// Unpin removes id. Unpinning an absent ID is a no-op and returns false.
func (s *Set) Unpin(ctx context.Context, id string) (bool, error) {
	return s.update(ctx, func(ids []string) ([]string, bool) {
		i := slices.Index(ids, id)
		if i < 0 {
			return ids, false
		}
		return slices.Delete(ids, i, i+1), true
	})
}

// Toggle pins id if absent and unpins it otherwise. It reports whether id
// is pinned afterwards.
func (s *Set) Toggle(ctx context.Context, id string) (bool, error) {
	pinned := false
	_, err := s.update(ctx, func(ids []string) ([]string, bool) {
		if i := slices.Index(ids, id); i >= 0 {
			return slices.Delete(ids, i, i+1), true
		}
		pinned = true
		return append(ids, id), true
	})
	return pinned, err
}

// Move swaps id with its neighbour in dir. Moving the first ID up, the
// last ID down, or an unpinned ID is a no-op and returns false.
func (s *Set) Move(ctx context.Context, id string, dir Direction) (bool, error) {
	return s.move(ctx, id, dir, nil)
}

// MoveAmong is Move over the pinned IDs that are in present. id swaps with
// the nearest such ID in dir, stepping over pins whose items no longer
// exist, so the visible order always changes when it reports true.
func (s *Set) MoveAmong(ctx context.Context, id string, dir Direction, present []string) (bool, error) {
	in := make(map[string]bool, len(present))
	for _, p := range present {
		in[p] = true
	}
	return s.move(ctx, id, dir, func(p string) bool { return in[p] })
}

func (s *Set) move(ctx context.Context, id string, dir Direction, keep func(string) bool) (bool, error) {
	return s.update(ctx, func(ids []string) ([]string, bool) {
		i := slices.Index(ids, id)
		j := neighbour(ids, i, dir, keep)
		if i < 0 || j < 0 {
			return ids, false
		}
		ids[i], ids[j] = ids[j], ids[i]
		return ids, true
	})
}

// CanMove reports whether Move(id, dir) would change the order.
func (s *Set) CanMove(ctx context.Context, id string, dir Direction) (bool, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return false, err
	}
	i := slices.Index(ids, id)
	return i >= 0 && neighbour(ids, i, dir, nil) >= 0, nil
}

// Movable reports which moves id has within visible, the pinned IDs in the
// order they are shown.
func Movable(visible []string, id string) (up, down bool) {
	i := slices.Index(visible, id)
	if i < 0 {
		return false, false
	}
	return i > 0, i < len(visible)-1
}

// neighbour returns the index of the nearest ID in dir from i accepted by
// keep, or -1. A nil keep accepts every ID.
func neighbour(ids []string, i int, dir Direction, keep func(string) bool) int {
	if i < 0 {
		return -1
	}
	step := -1
	if dir == Down {
		step = 1
	}
	for j := i + step; j >= 0 && j < len(ids); j += step {
		if keep == nil || keep(ids[j]) {
			return j
		}
	}
	return -1
}

func (s *Set) update(ctx context.Context, fn func([]string) ([]string, bool)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	ids, changed := fn(ids)
	if !changed {
		return false, nil
	}
	if err := kv.SetJSON(ctx, s.store, s.key, ids); err != nil {
		return false, fmt.Errorf("saving pins %s: %w", s.key, err)
	}
	return true, nil
}

func (s *Set) load(ctx context.Context) ([]string, error) {
	ids, _, err := kv.GetJSON[[]string](ctx, s.store, s.key)
	if err != nil {
		return nil, fmt.Errorf("loading pins %s: %w", s.key, err)
	}
	return ids, nil
}

// Partition splits items into pinned (in pin order) and the rest (in their
// original order). Pinned IDs missing from items are skipped.
func Partition[T any](items []T, pinned []string, id func(T) string) (pinnedItems, rest []T) {
	byID := make(map[string]T, len(items))
	for _, it := range items {
		byID[id(it)] = it
	}
	isPinned := make(map[string]bool, len(pinned))
	pinnedItems = []T{}
	for _, p := range pinned {
		if it, ok := byID[p]; ok && !isPinned[p] {
			pinnedItems = append(pinnedItems, it)
			isPinned[p] = true
		}
	}
	rest = []T{}
	for _, it := range items {
		if !isPinned[id(it)] {
			rest = append(rest, it)
		}
	}
	return pinnedItems, rest
}
