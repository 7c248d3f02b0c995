// Package ratelimit provides the two admission controls the engine
// uses: a strict sliding window for outbound DNS queries and a per-IP
// token bucket for the HTTP gateway.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Window is a sliding-window limiter: at most Max admissions inside any
// trailing interval. Unlike a token bucket it can never admit a burst
// above the maximum, which is the contract the query engine needs.
// Safe for concurrent use.
type Window struct {
	mu       sync.Mutex
	stamps   []time.Time
	max      int
	interval time.Duration
	now      func() time.Time
}

// NewWindow creates a sliding-window limiter admitting max requests per
// interval.
func NewWindow(max int, interval time.Duration) *Window {
	return &Window{
		max:      max,
		interval: interval,
		now:      time.Now,
	}
}

// Allow prunes entries older than the window and reports whether a new
// request may proceed, recording its timestamp if so.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.interval)

	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= w.max {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Len reports how many admissions currently sit inside the window.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.interval)
	n := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// Limiter is a per-IP token bucket rate limiter for the gateway. It
// tracks each visitor by IP address and automatically cleans up stale
// entries.
type Limiter struct {
	visitors map[string]*visitor
	mu       sync.RWMutex
	rps      rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a new per-IP rate limiter that allows rps requests
// per second with the given burst size. It starts a background
// goroutine that removes visitors not seen for 5 or more minutes,
// running every 3 minutes.
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go l.cleanup()
	return l
}

// Allow reports whether a request from the given IP address should be
// permitted. It creates a new token bucket for the IP if one does not
// already exist.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	v, exists := l.visitors[ip]
	if !exists {
		v = &visitor{
			limiter: rate.NewLimiter(l.rps, l.burst),
		}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	return v.limiter.Allow()
}

// cleanup periodically removes visitors that have not been seen for 5
// or more minutes. It runs in a loop every 3 minutes.
func (l *Limiter) cleanup() {
	for {
		time.Sleep(3 * time.Minute)

		l.mu.Lock()
		for ip, v := range l.visitors {
			if time.Since(v.lastSeen) >= 5*time.Minute {
				delete(l.visitors, ip)
			}
		}
		l.mu.Unlock()
	}
}
