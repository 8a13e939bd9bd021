// Package fakeapi runs in-process fakes of upstream APIs for tests. Each
// fake is a chi router wrapped with request recording, latency and
// per-route fault injection.
package fakeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server is a fake upstream. Register handlers on Router before Start.
type Server struct {
	Router   *chi.Mux
	Faults   *Faults
	Requests *RequestLog

	latency atomic.Int64
	srv     *httptest.Server
}

// New returns a Server with the middleware stack installed.
func New() *Server {
	s := &Server{
		Router:   chi.NewRouter(),
		Faults:   newFaults(),
		Requests: newRequestLog(1000),
	}
	s.Router.Use(chimw.RequestID)
	s.Router.Use(chimw.RealIP)
	s.Router.Use(s.record)
	s.Router.Use(s.injectLatency)
	s.Router.Use(s.injectFaults)
	return s
}

// Start serves the router and closes it when t finishes. It returns the
// base URL.
func (s *Server) Start(t testing.TB) string {
	t.Helper()
	s.srv = httptest.NewServer(s.Router)
	t.Cleanup(s.srv.Close)
	return s.srv.URL
}

// URL is the base URL of a started server.
func (s *Server) URL() string {
	if s.srv == nil {
		return ""
	}
	return s.srv.URL
}

// Client returns an HTTP client for the started server.
func (s *Server) Client() *http.Client {
	if s.srv == nil {
		return http.DefaultClient
	}
	return s.srv.Client()
}

// SetLatency delays every request by roughly d.
func (s *Server) SetLatency(d time.Duration) {
	s.latency.Store(int64(d))
}

// Fail makes method+path answer status with body until removed.
func (s *Server) Fail(method, path string, status int, body string) {
	s.Faults.Set(method+" "+path, Fault{Status: status, Body: body})
}

// FailOnce makes the next method+path request answer status with body.
func (s *Server) FailOnce(method, path string, status int, body string) {
	s.Faults.Set(method+" "+path, Fault{Status: status, Body: body, Times: 1})
}

// Delay slows method+path by d.
func (s *Server) Delay(method, path string, d time.Duration) {
	s.Faults.Set(method+" "+path, Fault{Delay: d})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.Requests.add(Request{
			Timestamp: start,
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.Query(),
			Header:    r.Header.Clone(),
			Body:      body,
			Status:    rec.statusCode,
			Duration:  time.Since(start),
		})
	})
}

func (s *Server) injectLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := time.Duration(s.latency.Load()); d > 0 {
			jitter := 0.8 + rand.Float64()*0.4
			time.Sleep(time.Duration(float64(d) * jitter))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fault := s.Faults.check(r); fault != nil {
			if fault.Delay > 0 {
				select {
				case <-time.After(fault.Delay):
				case <-r.Context().Done():
					return
				}
			}
			if fault.Status > 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(fault.Status)
				if fault.Body != "" {
					fmt.Fprint(w, fault.Body)
				} else {
					fmt.Fprintf(w, `{"error":{"message":"injected fault","code":%d}}`, fault.Status)
				}
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes a generic JSON error body.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}

// Decode reads a JSON request body into v, answering 400 on failure.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
