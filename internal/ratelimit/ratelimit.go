// Package ratelimit is a per-call token bucket. Callers over their budget
// fail fast with a retry hint instead of queueing.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrLimited matches any *LimitError via errors.Is.
var ErrLimited = errors.New("rate limit exceeded")

// LimitError carries how long the caller should wait.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimited }

// RetryAfterSeconds rounds up to whole seconds, minimum 1.
func (e *LimitError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

type Config struct {
	Requests int           // bucket size
	Window   time.Duration // time to refill a full bucket

	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg   Config
	limit rate.Limit

	mu sync.Mutex
	m  map[string]*entry
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New returns a limiter allowing cfg.Requests per cfg.Window per key. A
// non-positive Requests disables limiting.
func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	l := &Limiter{cfg: cfg, m: make(map[string]*entry)}
	if cfg.Requests > 0 && cfg.Window > 0 {
		l.limit = rate.Every(cfg.Window / time.Duration(cfg.Requests))
	}
	return l
}

// Allow spends one token for key.
func (l *Limiter) Allow(key string) error {
	return l.AllowAt(key, time.Now())
}

func (l *Limiter) AllowAt(key string, now time.Time) error {
	if l == nil || l.limit == 0 {
		return nil
	}
	lim := l.getOrCreate(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return &LimitError{RetryAfter: l.cfg.Window}
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return &LimitError{RetryAfter: d}
	}
	return nil
}

// Forget drops key's bucket, e.g. when a call ends.
func (l *Limiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.m, key)
	l.mu.Unlock()
}

func (l *Limiter) getOrCreate(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.m[key]; ok {
		e.lastSeen = now
		return e.lim
	}
	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}
	e := &entry{lim: rate.NewLimiter(l.limit, l.cfg.Requests), lastSeen: now}
	l.m[key] = e
	return e.lim
}

func (l *Limiter) gcLocked(now time.Time) {
	for k, e := range l.m {
		if now.Sub(e.lastSeen) > l.cfg.EntryTTL {
			delete(l.m, k)
		}
	}
}

// Len reports tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
