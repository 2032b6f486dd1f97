package realtime

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(3, 10*time.Second)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !rl.Allow(base.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if rl.Allow(base.Add(5 * time.Second)) {
		t.Fatalf("4th event inside window should be denied")
	}

	// The first event leaves the window at base+10s.
	if !rl.Allow(base.Add(10 * time.Second)) {
		t.Fatalf("event after oldest expired should be allowed")
	}
	if rl.Allow(base.Add(10*time.Second + 500*time.Millisecond)) {
		t.Fatalf("window full again; expected deny")
	}
	if !rl.Allow(base.Add(11 * time.Second)) {
		t.Fatalf("second event expired; expected allow")
	}
}

func TestRateLimiter_DeniedEventsAreNotRecorded(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if !rl.Allow(base) {
		t.Fatalf("first event should be allowed")
	}
	for i := 1; i < 10; i++ {
		if rl.Allow(base.Add(time.Duration(i) * 50 * time.Millisecond)) {
			t.Fatalf("event %d should be denied", i)
		}
	}
	if !rl.Allow(base.Add(time.Second)) {
		t.Fatalf("denied events must not extend the window")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if len(rl.ring) != rateLimitEvents || rl.window != rateLimitWindow {
		t.Fatalf("unexpected defaults: limit=%d window=%s", len(rl.ring), rl.window)
	}
}
