package fakeapi

import (
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Fault overrides or delays the response for one route.
type Fault struct {
	Status int
	Body   string
	Delay  time.Duration
	// Rate is the probability the fault triggers; 0 means always.
	Rate float64
	// Times limits how many requests the fault applies to; 0 means unlimited.
	Times int
}

// Faults holds injected faults keyed by "METHOD /path" or "/path".
type Faults struct {
	mu     sync.Mutex
	faults map[string]*Fault
}

func newFaults() *Faults {
	return &Faults{faults: make(map[string]*Fault)}
}

// Set injects f for key.
func (fr *Faults) Set(key string, f Fault) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if f.Rate == 0 {
		f.Rate = 1.0
	}
	fr.faults[key] = &f
}

// Remove drops the fault at key and reports whether one existed.
func (fr *Faults) Remove(key string) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	_, existed := fr.faults[key]
	delete(fr.faults, key)
	return existed
}

// Reset clears all faults.
func (fr *Faults) Reset() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.faults = make(map[string]*Fault)
}

// check returns the fault applying to r, preferring a method-specific one.
func (fr *Faults) check(r *http.Request) *Fault {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	for _, key := range []string{r.Method + " " + r.URL.Path, r.URL.Path} {
		f, ok := fr.faults[key]
		if !ok {
			continue
		}
		if f.Rate < 1.0 && rand.Float64() >= f.Rate {
			return nil
		}
		hit := *f
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				delete(fr.faults, key)
			}
		}
		return &hit
	}
	return nil
}
