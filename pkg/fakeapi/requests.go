package fakeapi

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Request is a recorded incoming request.
type Request struct {
	Timestamp time.Time
	Method    string
	Path      string
	Query     url.Values
	Header    http.Header
	Body      []byte
	Status    int
	Duration  time.Duration
}

// RequestLog is a bounded, thread-safe record of recent requests.
type RequestLog struct {
	mu      sync.RWMutex
	entries []Request
	maxSize int
}

func newRequestLog(maxSize int) *RequestLog {
	return &RequestLog{entries: make([]Request, 0, maxSize), maxSize: maxSize}
}

func (rl *RequestLog) add(r Request) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.entries) >= rl.maxSize {
		rl.entries = rl.entries[1:]
	}
	rl.entries = append(rl.entries, r)
}

// All returns a copy of the log.
func (rl *RequestLog) All() []Request {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	out := make([]Request, len(rl.entries))
	copy(out, rl.entries)
	return out
}

// Matching returns requests with the given method and path.
func (rl *RequestLog) Matching(method, path string) []Request {
	var out []Request
	for _, r := range rl.All() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many requests hit method and path.
func (rl *RequestLog) Count(method, path string) int {
	return len(rl.Matching(method, path))
}

// Last returns the most recent request, if any.
func (rl *RequestLog) Last() (Request, bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if len(rl.entries) == 0 {
		return Request{}, false
	}
	return rl.entries[len(rl.entries)-1], true
}

// Clear empties the log.
func (rl *RequestLog) Clear() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.entries = rl.entries[:0]
}
