// Package ratelimit implements the fixed-window counter gating outbound GDS
// calls. Two windows are kept per key: a 1-minute and a 1-hour window, each
// with its own cap and independent expiry. A request is granted only when
// both counters are under cap, and granting increments both.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

type Limiter struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	minutes   map[string]*window
	hours     map[string]*window
	now       func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(perMinute, perHour int, opts ...Option) *Limiter {
	l := &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		minutes:   make(map[string]*window),
		hours:     make(map[string]*window),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a request under key may proceed, incrementing both
// window counters when it may.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	minute := l.current(l.minutes, key, now, time.Minute)
	hour := l.current(l.hours, key, now, time.Hour)

	if minute.count >= l.perMinute || hour.count >= l.perHour {
		return false
	}
	minute.count++
	hour.count++
	return true
}

// RetryAfter returns how long the caller must wait before a request under
// key can be granted again. Zero means the key is not currently limited.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var wait time.Duration
	if w := l.current(l.minutes, key, now, time.Minute); w.count >= l.perMinute {
		wait = w.resetAt.Sub(now)
	}
	if w := l.current(l.hours, key, now, time.Hour); w.count >= l.perHour {
		if d := w.resetAt.Sub(now); d > wait {
			wait = d
		}
	}
	return wait
}

func (l *Limiter) current(windows map[string]*window, key string, now time.Time, span time.Duration) *window {
	w, ok := windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(span)}
		windows[key] = w
	}
	return w
}
