package extension

import (
	"log/slog"
	"net/http"

	"github.com/extdeck/extdeck/pkg/cache"
	"github.com/extdeck/extdeck/pkg/fetch"
	"github.com/extdeck/extdeck/pkg/kv"
	"github.com/extdeck/extdeck/pkg/notify"
)

// Env is everything a command may touch. It is built once per command
// invocation and passed down explicitly.
type Env struct {
	Extension string
	Prefs     Preferences
	// Store is namespaced to the extension.
	Store    kv.Store
	Cache    *cache.Cache
	Notifier notify.Notifier
	Logger   *slog.Logger
	HTTP     *http.Client
	// OnChange is called whenever a screen's rendered view may have changed.
	OnChange func()
}

// Changed signals that the screen should be re-rendered.
func (e *Env) Changed() {
	if e.OnChange != nil {
		e.OnChange()
	}
}

// Client returns a fetch client for baseURL sharing the env's transport and
// logger.
func (e *Env) Client(baseURL string, opts ...fetch.Option) *fetch.Client {
	base := []fetch.Option{fetch.WithLogger(e.Log())}
	if e.HTTP != nil {
		base = append(base, fetch.WithHTTPClient(e.HTTP))
	}
	return fetch.New(baseURL, append(base, opts...)...)
}

// Toast reports a failure through the env's notifier.
func (e *Env) Toast(title string, err error) {
	e.Log().Warn(title, "err", err)
	if e.Notifier != nil {
		notify.Failure(e.Notifier, title, err)
	}
}

// Log returns the env's logger tagged with the extension name. It is never nil.
func (e *Env) Log() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger.With("extension", e.Extension)
}
