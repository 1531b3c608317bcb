package ratelimit

import (
	"context"
	"sync"
	"time"

	"onboarding-gateway/pkg/requestcontext"
)

// InMemory keeps one timestamp list per key. It is not shared between
// replicas; use Redis when more than one instance serves traffic.
type InMemory struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

type slidingWindow struct {
	stamps []time.Time // oldest first
	window time.Duration
}

func NewInMemory() *InMemory {
	return &InMemory{windows: make(map[string]*slidingWindow)}
}

func (s *InMemory) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	sw := s.windows[key]
	if sw == nil {
		sw = &slidingWindow{}
		s.windows[key] = sw
	}
	sw.window = window
	sw.prune(now)

	if len(sw.stamps) >= limit {
		resetAt := now.Add(window)
		if len(sw.stamps) > 0 {
			resetAt = sw.stamps[0].Add(window)
		}
		return Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt.Sub(now)),
		}, nil
	}

	sw.stamps = append(sw.stamps, now)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(sw.stamps),
		ResetAt:   sw.stamps[0].Add(window),
	}, nil
}

// PurgeExpired drops keys whose window has fully elapsed.
func (s *InMemory) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, sw := range s.windows {
		sw.prune(now)
		if len(sw.stamps) == 0 {
			delete(s.windows, k)
			removed++
		}
	}
	return removed
}

// prune drops timestamps at or before now minus the window.
func (sw *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.stamps); i++ {
		if sw.stamps[i].After(cutoff) {
			break
		}
	}
	sw.stamps = sw.stamps[i:]
}
