// Package binding connects a Fetcher+Transformer pair to a view. A Binding
// tracks data, loading and error state, re-runs the fetch when its
// dependency key changes, optionally persists the last good result, and
// applies optimistic mutations.
//
// Superseded fetches are cancelled and their results discarded unless the
// binding was built WithLastArrivalWins.
package binding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/cache"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/optimistic"
)

// FetchFunc loads the data for key.
type FetchFunc[K comparable, T any] func(ctx context.Context, key K) (T, error)

// State is a snapshot of a Binding.
type State[T any] struct {
	Data      T
	IsLoading bool
	Err       error
	UpdatedAt time.Time
}

// Binding is safe for concurrent use.
type Binding[K comparable, T any] struct {
	fetch FetchFunc[K, T]
	cfg   config

	base context.Context
	stop context.CancelFunc

	mu          sync.Mutex
	cond        *sync.Cond
	state       State[T]
	key         K
	mounted     bool
	closed      bool
	cachedAt    time.Time
	gen         uint64
	latestDone  bool
	cancel      context.CancelFunc
	running     int // fetch goroutines that have not reported back
	inflight    int // fetch goroutines that have not finished side effects
	pending     bool
	timer       *time.Timer
	debounceGen uint64
}

// New creates a Binding whose data starts as initial, or as the cached
// value when WithCache finds one. Nothing is fetched until Update.
func New[K comparable, T any](fetch FetchFunc[K, T], initial T, opts ...Option) *Binding[K, T] {
	cfg := config{
		failureTitle: defaultFailureTitle,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	base, stop := context.WithCancel(context.Background())
	b := &Binding[K, T]{
		fetch:      fetch,
		cfg:        cfg,
		base:       base,
		stop:       stop,
		latestDone: true,
	}
	b.cond = sync.NewCond(&b.mu)
	b.state.Data = initial

	if cfg.cache != nil && cfg.cacheKey != "" {
		v, entry, ok, err := cache.Load[T](base, cfg.cache, cfg.cacheKey)
		switch {
		case err != nil:
			cfg.logger.Debug("ignoring unreadable cache entry", "key", cfg.cacheKey, "err", err)
		case ok:
			b.state.Data = v
			b.state.UpdatedAt = entry.StoredAt
			b.cachedAt = entry.StoredAt
		}
	}
	return b
}

// State returns the current snapshot.
func (b *Binding[K, T]) State() State[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Key returns the dependency key of the last Update.
func (b *Binding[K, T]) Key() K {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key
}

// Update declares the current dependency key. The first call mounts the
// binding and fetches (unless a cached value is still fresh); later calls
// fetch only when key differs from the previous one.
func (b *Binding[K, T]) Update(key K) {
	b.mu.Lock()
	if b.closed || (b.mounted && key == b.key) {
		b.mu.Unlock()
		return
	}
	first := !b.mounted
	b.mounted = true
	b.key = key

	switch {
	case first && b.freshLocked():
		b.mu.Unlock()
		return
	case !first && b.cfg.debounce > 0:
		b.scheduleLocked(key)
	default:
		b.startLocked(key)
	}
	b.mu.Unlock()
	b.changed()
}

// Revalidate refetches with the current key, bypassing debounce and max age.
// A debounced fetch still waiting to fire is dropped in favour of this one.
func (b *Binding[K, T]) Revalidate() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.mounted = true
	b.cancelScheduledLocked()
	b.startLocked(b.key)
	b.mu.Unlock()
	b.changed()
}

// SetData replaces the data locally with fn's result and persists it.
func (b *Binding[K, T]) SetData(fn func(T) T) {
	b.mu.Lock()
	b.state.Data = fn(b.state.Data)
	data := b.state.Data
	b.mu.Unlock()
	b.persist(data)
	b.changed()
}

// Wait blocks until no fetch is in flight or scheduled.
func (b *Binding[K, T]) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.inflight > 0 || b.pending {
		b.cond.Wait()
	}
}

// Close cancels in-flight fetches and stops reacting to updates.
func (b *Binding[K, T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.pending = false
	b.cond.Broadcast()
	b.mu.Unlock()
	b.stop()
}

func (b *Binding[K, T]) freshLocked() bool {
	if b.cfg.maxAge <= 0 || b.cfg.cache == nil || b.cachedAt.IsZero() {
		return false
	}
	return b.cfg.cache.Now().Sub(b.cachedAt) < b.cfg.maxAge
}

// cancelScheduledLocked stops a pending debounced fetch. A timer that has
// already fired sees the bumped generation and returns.
func (b *Binding[K, T]) cancelScheduledLocked() {
	b.debounceGen++
	if b.timer != nil {
		b.timer.Stop()
	}
	b.pending = false
}

func (b *Binding[K, T]) scheduleLocked(key K) {
	b.cancelScheduledLocked()
	g := b.debounceGen
	b.pending = true
	b.state.IsLoading = true
	b.timer = time.AfterFunc(b.cfg.debounce, func() {
		b.mu.Lock()
		if g != b.debounceGen || b.closed {
			b.mu.Unlock()
			return
		}
		b.pending = false
		b.startLocked(key)
		b.mu.Unlock()
		b.changed()
	})
}

func (b *Binding[K, T]) startLocked(key K) {
	if b.cancel != nil && !b.cfg.lastArrivalWins {
		b.cancel()
	}
	b.gen++
	gen := b.gen
	ctx, cancel := context.WithCancel(b.base)
	b.cancel = cancel
	b.running++
	b.inflight++
	b.latestDone = false
	b.refreshLoadingLocked()
	go b.run(ctx, cancel, gen, key)
}

func (b *Binding[K, T]) run(ctx context.Context, cancel context.CancelFunc, gen uint64, key K) {
	defer cancel()
	data, err := b.fetch(ctx, key)

	b.mu.Lock()
	b.running--
	latest := gen == b.gen
	if latest {
		b.latestDone = true
	}
	discard := b.closed ||
		(!latest && !b.cfg.lastArrivalWins) ||
		(err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled))
	if !discard {
		if err != nil {
			b.state.Err = err
		} else {
			b.state.Data = data
			b.state.Err = nil
			b.state.UpdatedAt = b.now()
		}
	}
	b.refreshLoadingLocked()
	b.mu.Unlock()

	if !discard {
		if err != nil {
			b.cfg.logger.Warn("fetch failed", "err", err)
			if b.cfg.notifier != nil {
				notify.Failure(b.cfg.notifier, b.cfg.failureTitle, err)
			}
		} else {
			b.persist(data)
		}
		b.changed()
	}

	b.mu.Lock()
	b.inflight--
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *Binding[K, T]) refreshLoadingLocked() {
	if b.cfg.lastArrivalWins {
		b.state.IsLoading = b.pending || b.running > 0
		return
	}
	b.state.IsLoading = b.pending || !b.latestDone
}

func (b *Binding[K, T]) persist(data T) {
	if b.cfg.cache == nil || b.cfg.cacheKey == "" {
		return
	}
	if err := b.cfg.cache.Put(context.Background(), b.cfg.cacheKey, data); err != nil {
		b.cfg.logger.Warn("writing cache entry", "key", b.cfg.cacheKey, "err", err)
	}
}

func (b *Binding[K, T]) now() time.Time {
	if b.cfg.cache != nil {
		return b.cfg.cache.Now()
	}
	return time.Now()
}

func (b *Binding[K, T]) changed() {
	if b.cfg.onChange != nil {
		b.cfg.onChange()
	}
}

// Mutation is a speculative change to the bound data.
type Mutation[T any] struct {
	// Optimistic patches the data immediately. It must return a new value
	// and leave its argument untouched.
	Optimistic func(T) T
	// Commit performs the remote call. A non-nil returned function
	// reconciles the data with the server's answer.
	Commit func(ctx context.Context) (func(T) T, error)
	// FailureTitle overrides the binding's failure toast title.
	FailureTitle string
	// Revalidate refetches after a successful commit.
	Revalidate bool
}

// Mutate applies m. On failure the data is restored to its exact
// pre-patch value, a failure toast is shown and the error returned.
func (b *Binding[K, T]) Mutate(ctx context.Context, m Mutation[T]) error {
	var before T
	tx := optimistic.Transaction[func(T) T]{
		Apply: func() {
			if m.Optimistic == nil {
				return
			}
			b.mu.Lock()
			before = b.state.Data
			b.state.Data = m.Optimistic(before)
			b.mu.Unlock()
			b.changed()
		},
		Revert: func() {
			if m.Optimistic == nil {
				return
			}
			b.mu.Lock()
			b.state.Data = before
			b.mu.Unlock()
			b.changed()
		},
		Commit: m.Commit,
	}

	reconcile, err := tx.Run(ctx)
	if err != nil {
		b.cfg.logger.Warn("mutation failed", "err", err)
		if b.cfg.notifier != nil {
			title := m.FailureTitle
			if title == "" {
				title = b.cfg.failureTitle
			}
			notify.Failure(b.cfg.notifier, title, err)
		}
		return err
	}

	if reconcile != nil {
		b.SetData(reconcile)
	} else if m.Optimistic != nil {
		b.mu.Lock()
		data := b.state.Data
		b.mu.Unlock()
		b.persist(data)
	}
	if m.Revalidate {
		b.Revalidate()
	}
	return nil
}
