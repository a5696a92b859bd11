package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is a process-local fixed-window counter keyed by action and client.
// One instance is built at startup and shared by every rate-limited route.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time

	logger *logrus.Entry
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an empty limiter. Call Start to enable the background sweep.
func New(logger *logrus.Entry) *Limiter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		entries: make(map[string]*entry),
		now:     time.Now,
		logger:  logger.WithField("component", "rate-limit-sweeper"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// WithClock overrides the time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

// Check admits or denies one request for key under a budget of maxRequests per window.
// A missing or expired entry is replaced with count 1; an exhausted entry denies
// and reports its existing reset time.
func (l *Limiter) Check(key string, maxRequests int, window time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(window)}
		l.entries[key] = e
		return Result{Allowed: true, Limit: maxRequests, Remaining: maxRequests - 1, ResetAt: e.resetAt}
	}

	if e.count >= maxRequests {
		return Result{Allowed: false, Limit: maxRequests, Remaining: 0, ResetAt: e.resetAt}
	}

	e.count++
	return Result{Allowed: true, Limit: maxRequests, Remaining: maxRequests - e.count, ResetAt: e.resetAt}
}

// Sweep drops entries whose window already elapsed and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, e := range l.entries {
		if e.resetAt.Before(now) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start runs Sweep every interval until Stop is called.
func (l *Limiter) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	l.done = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(l.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					l.logger.WithField("removed", n).Debug("swept expired rate-limit entries")
				}
			case <-l.ctx.Done():
				l.logger.Info("Stopping rate-limit sweeper...")
				return
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit.
func (l *Limiter) Stop() {
	l.cancel()
	if l.done != nil {
		<-l.done
	}
}
