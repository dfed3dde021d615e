package guard

import (
	"sync"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed bool
	// RetryAfter estimates when the origin may retry after a throttle.
	RetryAfter time.Duration
	// Remaining is the number of requests the origin has left in the window.
	Remaining int
}

// Limiter tracks per-origin request timestamps in a sliding window. Each
// origin has its own lock, so a check for one origin never serializes with
// checks for another; within one origin the check-and-record is atomic, so
// two simultaneous requests cannot both slip under the limit.
type Limiter struct {
	limit  int
	window time.Duration
	clock  Clock

	origins sync.Map // origin key -> *originWindow
}

type originWindow struct {
	mu     sync.Mutex
	stamps []time.Time
}

// NewLimiter creates a Limiter allowing limit requests per origin per window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return NewLimiterWithClock(limit, window, realClock{})
}

// NewLimiterWithClock creates a Limiter with an injected clock (used by tests).
func NewLimiterWithClock(limit int, window time.Duration, clock Clock) *Limiter {
	return &Limiter{limit: limit, window: window, clock: clock}
}

// Limit returns the configured per-window request limit.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration { return l.window }

// Check records a request for the origin if it is under the limit. Entries
// older than the window are pruned lazily on each call.
func (l *Limiter) Check(origin string) Decision {
	v, _ := l.origins.LoadOrStore(origin, &originWindow{})
	w := v.(*originWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= l.limit {
		retry := w.stamps[0].Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, RetryAfter: retry}
	}

	w.stamps = append(w.stamps, now)
	return Decision{Allowed: true, Remaining: l.limit - len(w.stamps)}
}

// Remaining reports how many requests the origin has left without recording
// a request.
func (l *Limiter) Remaining(origin string) int {
	v, ok := l.origins.Load(origin)
	if !ok {
		return l.limit
	}
	w := v.(*originWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := l.clock.Now().Add(-l.window)
	count := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			count++
		}
	}
	if count >= l.limit {
		return 0
	}
	return l.limit - count
}
