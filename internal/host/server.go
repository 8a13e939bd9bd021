// Package host serves extension sessions over HTTP so a launcher front end
// can open commands, render their views and forward user input.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/extdeck/extdeck/pkg/extension"
	"github.com/extdeck/extdeck/pkg/view"
)

// Server is the bridge between a front end and the launcher.
type Server struct {
	Router   *chi.Mux
	Logger   *slog.Logger
	Requests *RequestLog

	launcher *Launcher
	version  string
	verbose  bool
	counter  atomic.Uint64

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewServer wires the router for l.
func NewServer(l *Launcher, version string, logger *slog.Logger, verbose bool) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		Router:   chi.NewRouter(),
		Logger:   logger,
		Requests: NewRequestLog(500),
		launcher: l,
		version:  version,
		verbose:  verbose,
		sessions: make(map[string]*Session),
	}
	r := s.Router
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", s.handleHealth)
	r.Get("/requests", s.handleRequests)
	r.Get("/extensions", s.handleExtensions)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleOpen)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Delete("/", s.handleClose)
			r.Post("/search", s.handleSearch)
			r.Post("/filter", s.handleFilter)
			r.Post("/actions", s.handleAction)
			r.Get("/stream", s.handleStream)
		})
	})
	return s
}

// ServeHTTP implements http.Handler so the server can be used in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down and
// closes every session.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("starting bridge", "addr", addr, "version", s.version)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.Logger.Info("shutting down bridge")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdown)
	s.Close()
	return err
}

// Close closes every open session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
}

func (s *Server) session(r *http.Request) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[chi.URLParam(r, "id")]
	return sess, ok
}

type extensionInfo struct {
	Name        string              `json:"name"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Commands    []extension.Command `json:"commands"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	n := len(s.sessions)
	s.mu.RUnlock()
	JSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"sessions": n,
	})
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, s.Requests.Entries())
}

func (s *Server) handleExtensions(w http.ResponseWriter, r *http.Request) {
	var out []extensionInfo
	for _, e := range s.launcher.Registry.List() {
		out = append(out, extensionInfo{
			Name:        e.Name,
			Title:       e.Title,
			Description: e.Description,
			Commands:    e.Commands,
		})
	}
	JSON(w, http.StatusOK, out)
}

type sessionInfo struct {
	ID        string    `json:"id"`
	Extension string    `json:"extension"`
	Command   string    `json:"command"`
	Created   time.Time `json:"created"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]sessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sessionInfo{ID: sess.ID, Extension: sess.Extension, Command: sess.Command, Created: sess.Created})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	JSON(w, http.StatusOK, out)
}

type openRequest struct {
	Extension string            `json:"extension"`
	Command   string            `json:"command"`
	Args      map[string]string `json:"args"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Extension == "" || req.Command == "" {
		Error(w, http.StatusBadRequest, "extension and command are required")
		return
	}

	id := fmt.Sprintf("ses_%06d", s.counter.Add(1))
	// Sessions outlive the request that opened them.
	sess, err := s.launcher.Open(context.WithoutCancel(r.Context()), id, req.Extension, req.Command, req.Args)
	if err != nil {
		s.Logger.Warn("open failed", "extension", req.Extension, "command", req.Command, "err", err)
		Error(w, statusFor(err), err.Error())
		return
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	JSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if r.URL.Query().Get("wait") == "true" {
		sess.Wait()
	}
	JSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	sess.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	s.input(w, r, &req, func(sess *Session) error { return sess.Search(req.Text) })
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	s.input(w, r, &req, func(sess *Session) error { return sess.Filter(req.Value) })
}

type actionRequest struct {
	Action string            `json:"action"`
	Input  map[string]string `json:"input"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	s.input(w, r, &req, func(sess *Session) error {
		if req.Action == "" {
			return fmt.Errorf("%w: action is required", ErrBadRequest)
		}
		return sess.Perform(r.Context(), req.Action, req.Input)
	})
}

// input decodes the body into req, applies it to the session and responds
// with the settled snapshot. Failures still carry the snapshot so the front
// end can show the toasts they raised.
func (s *Server) input(w http.ResponseWriter, r *http.Request, req any, apply func(*Session) error) {
	sess, ok := s.session(r)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := apply(sess); err != nil {
		s.Logger.Warn("input failed", "session", sess.ID, "err", err)
		snap := sess.Snapshot()
		snap.Error = err.Error()
		JSON(w, statusFor(err), snap)
		return
	}
	sess.Wait()
	JSON(w, http.StatusOK, sess.Snapshot())
}

// statusFor maps launcher and screen errors to HTTP statuses.
func statusFor(err error) int {
	var missing *extension.MissingPreferenceError
	switch {
	case errors.Is(err, extension.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrNotSearchable), errors.Is(err, ErrNotFilterable):
		return http.StatusBadRequest
	case errors.As(err, &missing), errors.Is(err, view.ErrInvalid):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    http.StatusText(status),
			"code":    status,
		},
	})
}
