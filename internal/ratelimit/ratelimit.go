// Package ratelimit implements sliding-window admission control for calls
// to the external model provider.
//
// The process constructs a single Limiter at startup and shares it between
// the interactive answer path and the batch ingestion worker, so both obey
// one global ceiling. State is in-memory only and resets on restart.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Window is the sliding-window width used for admission control.
const Window = time.Minute

// Limiter bounds outbound provider calls to a fixed number of requests per
// rolling 60-second window. It is safe for concurrent use by multiple
// goroutines.
//
// The check-then-record sequence runs inside a single critical section, so
// two concurrent acquirers can never both observe the last free slot.
// Waiting for a slot happens outside the lock; after waking, the limiter
// re-checks because concurrent acquirers may have consumed slots meanwhile.
type Limiter struct {
	mu     sync.Mutex
	calls  []time.Time // timestamps of recorded calls, oldest first
	limit  int
	logger *slog.Logger

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Usage is a read-only snapshot of the current window.
type Usage struct {
	InWindow  int // calls recorded within the last 60 seconds
	Limit     int // configured requests-per-minute ceiling
	Remaining int // free slots (never negative)
}

// New creates a Limiter allowing requestsPerMinute calls per rolling minute.
// requestsPerMinute must be positive.
func New(requestsPerMinute int, logger *slog.Logger) (*Limiter, error) {
	if requestsPerMinute <= 0 {
		return nil, fmt.Errorf("requests per minute must be positive, got %d", requestsPerMinute)
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Limiter{
		calls:  make([]time.Time, 0, requestsPerMinute),
		limit:  requestsPerMinute,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}

	logger.Debug("rate limiter initialized", "requests_per_minute", requestsPerMinute)
	return l, nil
}

// Acquire blocks until a request slot is available, then records the call
// timestamp and returns. If ctx is cancelled while waiting, Acquire returns
// ctx's error and no timestamp is recorded — the slot was never consumed.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.calls) < l.limit {
			l.calls = append(l.calls, now)
			count := len(l.calls)
			l.mu.Unlock()
			l.logger.Debug("provider call admitted", "in_window", count, "limit", l.limit)
			return nil
		}

		// Window is full: the next slot frees when the oldest call ages out.
		wait := l.calls[0].Add(Window).Sub(now)
		l.mu.Unlock()

		if wait < 0 {
			wait = 0
		}
		l.logger.Info("rate limit reached, waiting for slot", "wait", wait, "limit", l.limit)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// CurrentUsage reports the in-window call count, the configured limit, and
// the remaining slots. It prunes expired timestamps but does not consume a
// slot.
func (l *Limiter) CurrentUsage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	inWindow := len(l.calls)
	remaining := l.limit - inWindow
	if remaining < 0 {
		remaining = 0
	}
	return Usage{
		InWindow:  inWindow,
		Limit:     l.limit,
		Remaining: remaining,
	}
}

// prune drops timestamps older than the window. Caller must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-Window)
	idx := 0
	for idx < len(l.calls) && !l.calls[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.calls = append(l.calls[:0], l.calls[idx:]...)
	}
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
