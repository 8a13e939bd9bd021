package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/cache"
	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
	"github.com/extdeck/extdeck/pkg/view"
)

var (
	// ErrBadRequest wraps invalid command arguments.
	ErrBadRequest = errors.New("bad request")
	// ErrNotSearchable is returned when searching a screen without a
	// search bar.
	ErrNotSearchable = errors.New("screen has no search bar")
	// ErrNotFilterable is returned when filtering a screen without a
	// dropdown.
	ErrNotFilterable = errors.New("screen has no dropdown")
)

// PrefsFunc returns the stored preference values of ext.
type PrefsFunc func(ext string, specs []extension.PreferenceSpec) map[string]string

// Launcher opens extension commands with a fully built Env.
type Launcher struct {
	Registry *extension.Registry
	Store    kv.Store
	Prefs    PrefsFunc
	Logger   *slog.Logger
	HTTP     *http.Client
	// Notifier additionally receives every toast, e.g. a log sink.
	Notifier notify.Notifier

	mu     sync.Mutex
	caches map[string]*cache.Cache
}

func (l *Launcher) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.Logger
}

// cacheFor shares one cache per extension across sessions.
func (l *Launcher) cacheFor(ext string) *cache.Cache {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.caches == nil {
		l.caches = make(map[string]*cache.Cache)
	}
	c, ok := l.caches[ext]
	if !ok {
		c = cache.New(kv.Prefix(l.Store, ext+":cache"))
		l.caches[ext] = c
	}
	return c
}

// Open resolves ext/cmd, builds its Env and opens the screen. id names the
// session in logs.
func (l *Launcher) Open(ctx context.Context, id, ext, cmd string, args map[string]string) (*Session, error) {
	e, c, err := l.Registry.Lookup(ext, cmd)
	if err != nil {
		return nil, err
	}
	if err := c.CheckArgs(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	var values map[string]string
	if l.Prefs != nil {
		values = l.Prefs(e.Name, e.Preferences)
	}
	prefs, err := extension.Resolve(e.Name, e.Preferences, values)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        id,
		Extension: e.Name,
		Command:   c.Name,
		Created:   time.Now().UTC(),
		toasts:    &notify.Recorder{},
		subs:      make(map[chan struct{}]struct{}),
	}
	var n notify.Notifier = s.toasts
	if l.Notifier != nil {
		n = notify.Multi{s.toasts, l.Notifier}
	}
	env := &extension.Env{
		Extension: e.Name,
		Prefs:     prefs,
		Store:     kv.Prefix(l.Store, e.Name),
		Cache:     l.cacheFor(e.Name),
		Notifier:  n,
		Logger:    l.logger().With("session", id),
		HTTP:      l.HTTP,
		OnChange:  s.changed,
	}
	screen, err := c.Open(ctx, env, args)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.screen = screen
	s.mu.Unlock()
	l.logger().Info("session opened", "session", id, "extension", e.Name, "command", c.Name)
	return s, nil
}

// Snapshot is a session's rendered state on the wire.
type Snapshot struct {
	ID        string         `json:"id"`
	Extension string         `json:"extension"`
	Command   string         `json:"command"`
	View      view.Envelope  `json:"view"`
	Toasts    []notify.Toast `json:"toasts"`
	Error     string         `json:"error,omitempty"`
}

// Session is one open command.
type Session struct {
	ID        string
	Extension string
	Command   string
	Created   time.Time

	toasts *notify.Recorder

	mu     sync.Mutex
	screen extension.Screen
	subs   map[chan struct{}]struct{}
	closed bool
}

func (s *Session) current() extension.Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

// Snapshot renders the screen.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.ID,
		Extension: s.Extension,
		Command:   s.Command,
		Toasts:    s.toasts.Toasts(),
	}
	if sc := s.current(); sc != nil {
		snap.View = view.Wrap(sc.Render())
	} else {
		snap.View = view.Wrap(nil)
	}
	return snap
}

// Search forwards text to a searchable screen.
func (s *Session) Search(text string) error {
	sc, ok := s.current().(extension.Searchable)
	if !ok {
		return ErrNotSearchable
	}
	sc.Search(text)
	return nil
}

// Filter forwards a dropdown value to a filterable screen.
func (s *Session) Filter(value string) error {
	sc, ok := s.current().(extension.Filterable)
	if !ok {
		return ErrNotFilterable
	}
	sc.Filter(value)
	return nil
}

// Perform runs an action on the screen.
func (s *Session) Perform(ctx context.Context, action string, input map[string]string) error {
	return s.current().Perform(ctx, action, input)
}

// Wait blocks until the screen's fetches have settled.
func (s *Session) Wait() {
	if sc := s.current(); sc != nil {
		sc.Wait()
	}
}

// Subscribe returns a channel signalled after every change. The channel
// holds at most one pending signal. cancel unsubscribes.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	if s.closed {
		close(ch)
	} else {
		s.subs[ch] = struct{}{}
	}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Session) changed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close closes the screen and ends every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	sc := s.screen
	s.mu.Unlock()
	if sc != nil {
		sc.Close()
	}
}
