package guard

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for limiter tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCheck_AllowsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiterWithClock(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		d := l.Check("origin-a")
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
		if d.Remaining != 3-(i+1) {
			t.Errorf("request %d: Remaining = %d, want %d", i+1, d.Remaining, 3-(i+1))
		}
	}

	d := l.Check("origin-a")
	if d.Allowed {
		t.Fatal("request over limit allowed")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, window]", d.RetryAfter)
	}
}

func TestCheck_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiterWithClock(2, time.Minute, clock)

	l.Check("o")
	clock.Advance(30 * time.Second)
	l.Check("o")

	if d := l.Check("o"); d.Allowed {
		t.Fatal("third request within window allowed")
	}

	// First stamp ages out after the remaining 30s (plus a tick).
	clock.Advance(31 * time.Second)
	if d := l.Check("o"); !d.Allowed {
		t.Fatal("request after oldest stamp expired denied")
	}
}

func TestCheck_OriginsIndependent(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiterWithClock(1, time.Minute, clock)

	if d := l.Check("alice"); !d.Allowed {
		t.Fatal("alice's first request denied")
	}
	if d := l.Check("alice"); d.Allowed {
		t.Fatal("alice's second request allowed")
	}
	if d := l.Check("bob"); !d.Allowed {
		t.Fatal("bob throttled by alice's requests")
	}
}

func TestCheck_RetryAfterShrinks(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiterWithClock(1, time.Minute, clock)

	l.Check("o")
	first := l.Check("o")
	clock.Advance(20 * time.Second)
	later := l.Check("o")

	if later.Allowed {
		t.Fatal("still within window, should be denied")
	}
	if later.RetryAfter >= first.RetryAfter {
		t.Errorf("RetryAfter did not shrink: %v -> %v", first.RetryAfter, later.RetryAfter)
	}
}

func TestRemaining_DoesNotRecord(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiterWithClock(5, time.Minute, clock)

	if got := l.Remaining("o"); got != 5 {
		t.Errorf("Remaining for unseen origin = %d, want 5", got)
	}

	l.Check("o")
	for i := 0; i < 10; i++ {
		if got := l.Remaining("o"); got != 4 {
			t.Fatalf("Remaining = %d, want 4 (probe must not record)", got)
		}
	}
}

func TestCheck_ConcurrentSameOrigin(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiterWithClock(50, time.Minute, clock)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly 50", allowed)
	}
}
