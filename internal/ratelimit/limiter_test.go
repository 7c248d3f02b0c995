package ratelimit

import (
	"testing"
	"time"
)

func TestWindowAllowsUpToMax(t *testing.T) {
	w := NewWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !w.Allow() {
			t.Fatalf("request %d denied below the maximum", i+1)
		}
	}
	if w.Allow() {
		t.Error("request above the maximum was admitted")
	}
	if got := w.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}

func TestWindowPrunesExpiredEntries(t *testing.T) {
	w := NewWindow(2, time.Minute)

	current := time.Now()
	w.now = func() time.Time { return current }

	if !w.Allow() || !w.Allow() {
		t.Fatal("initial requests denied")
	}
	if w.Allow() {
		t.Fatal("over-limit request admitted")
	}

	// Slide past the window; old entries must be pruned, not counted.
	current = current.Add(61 * time.Second)
	if !w.Allow() {
		t.Error("request denied after the window slid past old entries")
	}
	if got := w.Len(); got != 1 {
		t.Errorf("Len() = %d after pruning, want 1", got)
	}
}

func TestWindowConcurrentAccess(t *testing.T) {
	w := NewWindow(50, time.Minute)

	done := make(chan bool)
	for i := 0; i < 100; i++ {
		go func() { done <- w.Allow() }()
	}

	admitted := 0
	for i := 0; i < 100; i++ {
		if <-done {
			admitted++
		}
	}
	if admitted != 50 {
		t.Errorf("admitted %d concurrent requests, want exactly 50", admitted)
	}
}

func TestLimiterPerIP(t *testing.T) {
	l := NewLimiter(1, 2)

	if !l.Allow("192.0.2.1") || !l.Allow("192.0.2.1") {
		t.Fatal("burst denied")
	}
	if l.Allow("192.0.2.1") {
		t.Error("request above burst admitted")
	}
	// A different IP gets its own bucket.
	if !l.Allow("192.0.2.2") {
		t.Error("first request from a fresh IP denied")
	}
}
