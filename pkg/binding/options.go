package binding

import (
	"log/slog"
	"time"

	"github.com/extdeck/extdeck/pkg/cache"
	"github.com/extdeck/extdeck/pkg/notify"
)

const defaultFailureTitle = "Failed to load data"

type config struct {
	cache           *cache.Cache
	cacheKey        string
	maxAge          time.Duration
	debounce        time.Duration
	lastArrivalWins bool
	notifier        notify.Notifier
	failureTitle    string
	onChange        func()
	logger          *slog.Logger
}

// Option configures a Binding.
type Option func(*config)

// WithCache seeds the binding from key at construction and writes every
// successful result back to it.
func WithCache(c *cache.Cache, key string) Option {
	return func(cfg *config) {
		cfg.cache = c
		cfg.cacheKey = key
	}
}

// WithMaxAge skips the mount-time fetch while the cached value is younger
// than d. Requires WithCache.
func WithMaxAge(d time.Duration) Option {
	return func(cfg *config) { cfg.maxAge = d }
}

// WithDebounce delays fetches triggered by key changes after mount until
// the key has been stable for d.
func WithDebounce(d time.Duration) Option {
	return func(cfg *config) { cfg.debounce = d }
}

// WithLastArrivalWins disables cancel-on-supersede: earlier fetches keep
// running and whichever resolves last overwrites the data, even if it was
// started first.
func WithLastArrivalWins() Option {
	return func(cfg *config) { cfg.lastArrivalWins = true }
}

// WithNotifier reports fetch and mutation failures as toasts titled title.
func WithNotifier(n notify.Notifier, title string) Option {
	return func(cfg *config) {
		cfg.notifier = n
		if title != "" {
			cfg.failureTitle = title
		}
	}
}

// WithOnChange is called after every state change, outside the lock.
func WithOnChange(fn func()) Option {
	return func(cfg *config) { cfg.onChange = fn }
}

// WithLogger sets the logger used for failed fetches and cache writes.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}
