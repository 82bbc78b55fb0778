// Package ratelimit implements the per-identity fixed window counter
// that throttles message sends. Two sends in the same millisecond count
// toward the same window; there is no sub-window smoothing.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultWindow      = time.Second
	DefaultMaxMessages = 5
)

type window struct {
	count     int
	resetTime time.Time
}

// Limiter tracks one fixed window per identity. Expired entries are
// removed by Sweep, bounding memory to recently active senders.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	size    time.Duration
	max     int
	now     func() time.Time
}

func NewLimiter(size time.Duration, max int) *Limiter {
	if size <= 0 {
		size = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxMessages
	}
	return &Limiter{
		windows: make(map[string]*window),
		size:    size,
		max:     max,
		now:     time.Now,
	}
}

// Allow counts one send for the identity and reports whether it is
// within the current window's cap. A send past the cap is denied and
// dropped, never queued.
func (l *Limiter) Allow(userId string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[userId]
	if !ok || now.After(w.resetTime) {
		l.windows[userId] = &window{count: 1, resetTime: now.Add(l.size)}
		return true
	}
	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

// Sweep deletes every window whose reset time has passed.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for userId, w := range l.windows {
		if now.After(w.resetTime) {
			delete(l.windows, userId)
		}
	}
}

// Tracked returns the number of identities currently holding a window.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
