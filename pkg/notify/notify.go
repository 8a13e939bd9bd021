// Package notify is the user-visible notification channel: transient
// toasts the host shows over the current view.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/extdeck/extdeck/pkg/fetch"
)

// Style is the toast's visual style.
type Style string

const (
	StyleSuccess  Style = "success"
	StyleFailure  Style = "failure"
	StyleAnimated Style = "animated"
)

// Toast is one notification.
type Toast struct {
	Style   Style     `json:"style"`
	Title   string    `json:"title"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier receives toasts.
type Notifier interface {
	Notify(Toast)
}

// Func adapts a function to Notifier.
type Func func(Toast)

func (f Func) Notify(t Toast) { f(t) }

// Discard drops every toast.
var Discard Notifier = Func(func(Toast) {})

// Failure shows a failure toast whose message is derived from err.
func Failure(n Notifier, title string, err error) {
	n.Notify(Toast{Style: StyleFailure, Title: title, Message: fetch.Message(err), At: time.Now()})
}

// Success shows a success toast.
func Success(n Notifier, title, message string) {
	n.Notify(Toast{Style: StyleSuccess, Title: title, Message: message, At: time.Now()})
}

// Log writes toasts to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(t Toast) {
	level := slog.LevelInfo
	if t.Style == StyleFailure {
		level = slog.LevelWarn
	}
	l.Logger.Log(context.Background(), level, "toast", "style", t.Style, "title", t.Title, "message", t.Message)
}

// Multi fans a toast out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(t Toast) {
	for _, n := range m {
		n.Notify(t)
	}
}

// Recorder keeps every toast it receives.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Notify(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

// Toasts returns a copy of the recorded toasts.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// Last returns the most recent toast.
func (r *Recorder) Last() (Toast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return Toast{}, false
	}
	return r.toasts[len(r.toasts)-1], true
}

// Drain returns the recorded toasts and clears the recorder.
func (r *Recorder) Drain() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.toasts
	r.toasts = nil
	return out
}
