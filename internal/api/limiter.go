package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepThreshold is the number of tracked devices above which idle limiters
// are evicted.
const sweepThreshold = 1024

// SendLimiter rate-limits message sends per device.
type SendLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSendLimiter allows perMinute sends per device with the given burst.
func NewSendLimiter(perMinute, burst int) *SendLimiter {
	return &SendLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idle:    10 * time.Minute,
		entries: make(map[string]*limiterEntry),
	}
}

// Allow reports whether deviceID may send now. A nil limiter allows everything.
func (l *SendLimiter) Allow(deviceID string) bool {
	if l == nil {
		return true
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[deviceID]
	if !ok {
		if len(l.entries) >= sweepThreshold {
			l.sweepLocked(now)
		}
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[deviceID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *SendLimiter) sweepLocked(now time.Time) {
	for id, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.entries, id)
		}
	}
}
