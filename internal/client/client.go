// Package client talks to a running deck bridge.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/extdeck/extdeck/pkg/fetch"
)

// BridgeClient calls the bridge HTTP API.
type BridgeClient struct {
	c *fetch.Client
}

// New creates a BridgeClient for addr, which may omit the scheme. Requests
// time out after 5 seconds.
func New(addr string) *BridgeClient {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &BridgeClient{
		c: fetch.New(addr, fetch.WithHTTPClient(&http.Client{Timeout: 5 * time.Second})),
	}
}

// Health is the bridge's GET /health answer.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// Validate implements fetch.Validator.
func (h Health) Validate() error {
	if h.Status == "" {
		return fmt.Errorf("missing status")
	}
	return nil
}

// Health checks GET /health.
func (b *BridgeClient) Health(ctx context.Context) (Health, error) {
	return fetch.Get[Health](ctx, b.c, "/health", nil)
}

// Command is one command of an installed extension.
type Command struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	Arguments []struct {
		Name     string `json:"name"`
		Required bool   `json:"required,omitempty"`
	} `json:"arguments,omitempty"`
}

// Extension is one installed extension.
type Extension struct {
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	Commands []Command `json:"commands"`
}

// Extensions lists the installed extensions.
func (b *BridgeClient) Extensions(ctx context.Context) ([]Extension, error) {
	return fetch.Get[[]Extension](ctx, b.c, "/extensions", nil)
}

// Session summarises an open session.
type Session struct {
	ID        string    `json:"id"`
	Extension string    `json:"extension"`
	Command   string    `json:"command"`
	Created   time.Time `json:"created"`
}

// Sessions lists the open sessions.
func (b *BridgeClient) Sessions(ctx context.Context) ([]Session, error) {
	return fetch.Get[[]Session](ctx, b.c, "/sessions", nil)
}

// Snapshot is a session's state. View stays raw so callers can print or
// decode it as they need.
type Snapshot struct {
	ID     string          `json:"id"`
	View   json.RawMessage `json:"view"`
	Toasts []struct {
		Style   string `json:"style"`
		Title   string `json:"title"`
		Message string `json:"message,omitempty"`
	} `json:"toasts"`
	Error string `json:"error,omitempty"`
}

// Open opens ext/cmd on the bridge.
func (b *BridgeClient) Open(ctx context.Context, ext, cmd string, args map[string]string) (Snapshot, error) {
	return fetch.Send[Snapshot](ctx, b.c, http.MethodPost, "/sessions", map[string]any{
		"extension": ext,
		"command":   cmd,
		"args":      args,
	})
}

// Perform runs action on session id.
func (b *BridgeClient) Perform(ctx context.Context, id, action string, input map[string]string) (Snapshot, error) {
	return fetch.Send[Snapshot](ctx, b.c, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/actions", map[string]any{
		"action": action,
		"input":  input,
	})
}

// Close closes session id.
func (b *BridgeClient) Close(ctx context.Context, id string) error {
	return b.c.Exec(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil)
}
