// Package ratelimit enforces a per-client sliding-window request budget.
// Unlike a token bucket, the window never smooths a burst into a sustained
// rate: a client gets exactly budget requests per window, counted against
// the timestamps of its own recent requests.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// clientWindow holds the request timestamps of one client inside the current
// window, oldest first.
type clientWindow struct {
	stamps []time.Time
}

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the budget left in the window after this request.
	Remaining int

	// RetryAfter is how long a rejected client must wait until a slot frees
	// up. Zero when Allowed is true.
	RetryAfter time.Duration
}

// SlidingWindow is a per-client sliding-window rate limiter. Stale client
// entries are evicted in the background to bound memory usage.
// It is safe for concurrent use.
type SlidingWindow struct {
	mu      sync.Mutex
	clients map[string]*clientWindow

	budget int
	window time.Duration
	log    *slog.Logger

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewSlidingWindow constructs a limiter allowing budget requests per window
// for each client and starts the background eviction goroutine. The goroutine
// exits when the returned stop function is called.
func NewSlidingWindow(budget int, window time.Duration, log *slog.Logger) (*SlidingWindow, func()) {
	l := &SlidingWindow{
		clients: make(map[string]*clientWindow),
		budget:  budget,
		window:  window,
		log:     log,
		now:     time.Now,
	}

	stopCh := make(chan struct{})
	go l.evictLoop(stopCh)

	return l, func() { close(stopCh) }
}

// Allow records a request attempt for the client and reports whether it fits
// the budget. Expired timestamps are purged before the check, so the limiter
// never carries phantom load from a previous window. Rejected attempts are
// not recorded and cannot extend the client's own lockout.
func (l *SlidingWindow) Allow(clientID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	cw, ok := l.clients[clientID]
	if !ok {
		cw = &clientWindow{}
		l.clients[clientID] = cw
	}

	// Drop timestamps that have slid out of the window.
	kept := cw.stamps[:0]
	for _, ts := range cw.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	cw.stamps = kept

	if len(cw.stamps) >= l.budget {
		retry := cw.stamps[0].Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		l.log.Warn("rate limit exceeded",
			slog.String("client", clientID),
			slog.Int("budget", l.budget),
			slog.Duration("retry_after", retry),
		)
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}
	}

	cw.stamps = append(cw.stamps, now)
	return Decision{Allowed: true, Remaining: l.budget - len(cw.stamps)}
}

// evictLoop removes clients whose every timestamp has expired. It runs in a
// background goroutine and exits when stopCh is closed.
func (l *SlidingWindow) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

// evict removes clients with no activity inside the current window.
func (l *SlidingWindow) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for id, cw := range l.clients {
		if len(cw.stamps) == 0 || !cw.stamps[len(cw.stamps)-1].After(cutoff) {
			delete(l.clients, id)
		}
	}
}

// clientCount returns the number of tracked clients. Test hook.
func (l *SlidingWindow) clientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
