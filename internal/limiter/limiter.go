// Package limiter defines interfaces and implementations for invite rate limiting.
package limiter

import (
	"context"
	"sync"
	"time"
)

// Limiter controls how often a single actor may issue invitations.
type Limiter interface {
	// Allow reports whether the actor may invite now and optional retry-after.
	Allow(ctx context.Context, actorID string) (bool, time.Duration, error)
}

// SlidingWindow allows at most Burst invites per actor within Window.
type SlidingWindow struct {
	window time.Duration
	burst  int
	now    func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
}

// NewSlidingWindow constructs an in-memory limiter.
func NewSlidingWindow(window time.Duration, burst int) *SlidingWindow {
	if burst <= 0 {
		burst = 1
	}
	return &SlidingWindow{
		window:  window,
		burst:   burst,
		now:     time.Now,
		history: make(map[string][]time.Time),
	}
}

var _ Limiter = (*SlidingWindow)(nil)

// Allow records the attempt when within budget and reports the decision.
func (l *SlidingWindow) Allow(_ context.Context, actorID string) (bool, time.Duration, error) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.history[actorID][:0]
	for _, t := range l.history[actorID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.burst {
		l.history[actorID] = recent
		return false, recent[0].Sub(cutoff), nil
	}
	l.history[actorID] = append(recent, now)
	return true, 0, nil
}
