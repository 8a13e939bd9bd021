package rsync

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/kv"
)

const (
	entriesKey = "entries"
	seqKey     = "entries-seq"
)

// Entry is a saved rsync invocation.
type Entry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Flags       []string  `json:"flags"`
	Excludes    []string  `json:"excludes"`
	SSHPort     int       `json:"ssh_port,omitempty"`
	Delete      bool      `json:"delete"`
	DryRun      bool      `json:"dry_run"`
	CreatedAt   time.Time `json:"created_at"`
	LastRunAt   time.Time `json:"last_run_at,omitzero"`
}

// library persists entries as one JSON array in the extension's store.
type library struct {
	mu    sync.Mutex
	store kv.Store
	now   func() time.Time
}

func (l *library) list(ctx context.Context) ([]Entry, error) {
	entries, _, err := kv.GetJSON[[]Entry](ctx, l.store, entriesKey)
	if err != nil {
		return nil, fmt.Errorf("loading saved commands: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (l *library) get(ctx context.Context, id string) (Entry, error) {
	entries, err := l.list(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("saved command %q: %w", id, extension.ErrNotFound)
}

// add assigns the next id and appends e.
func (l *library) add(ctx context.Context, e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq, _, err := kv.GetJSON[int](ctx, l.store, seqKey)
	if err != nil {
		return Entry{}, err
	}
	seq++
	e.ID = fmt.Sprintf("rs_%06d", seq)
	e.CreatedAt = l.now()

	entries, err := l.list(ctx)
	if err != nil {
		return Entry{}, err
	}
	if err := kv.SetJSON(ctx, l.store, entriesKey, append(entries, e)); err != nil {
		return Entry{}, err
	}
	return e, kv.SetJSON(ctx, l.store, seqKey, seq)
}

func (l *library) update(ctx context.Context, fn func([]Entry) []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.list(ctx)
	if err != nil {
		return err
	}
	return kv.SetJSON(ctx, l.store, entriesKey, fn(entries))
}

func (l *library) remove(ctx context.Context, id string) error {
	return l.update(ctx, func(es []Entry) []Entry {
		return slices.DeleteFunc(es, func(e Entry) bool { return e.ID == id })
	})
}

func (l *library) touch(ctx context.Context, id string) error {
	now := l.now()
	return l.update(ctx, func(es []Entry) []Entry {
		for i := range es {
			if es[i].ID == id {
				es[i].LastRunAt = now
			}
		}
		return es
	})
}
