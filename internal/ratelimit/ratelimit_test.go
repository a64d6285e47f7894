package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/docvault/docvault/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock drives the limiter deterministically: now() reads the current
// fake time and sleep() advances it instead of blocking.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time

	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(t *testing.T, limit int) (*Limiter, *fakeClock) {
	t.Helper()
	l, err := New(limit, log.NewNop())
	if err != nil {
		t.Fatalf("New(%d) error: %v", limit, err)
	}
	clock := newFakeClock()
	l.now = clock.now
	l.sleep = clock.sleep
	return l, clock
}

func TestNewRejectsNonPositiveLimit(t *testing.T) {
	for _, limit := range []int{0, -1, -100} {
		if _, err := New(limit, log.NewNop()); err == nil {
			t.Errorf("New(%d) expected error, got nil", limit)
		}
	}
}

func TestAcquireUnderLimitDoesNotWait(t *testing.T) {
	l, clock := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("expected no waits under the limit, got %v", clock.sleeps)
	}

	usage := l.CurrentUsage()
	if usage.InWindow != 3 || usage.Remaining != 0 {
		t.Errorf("usage = %+v, want InWindow=3 Remaining=0", usage)
	}
}

// Every 60-second window must contain at most the configured number of
// recorded timestamps, regardless of how many back-to-back acquires run.
func TestSlidingWindowCeiling(t *testing.T) {
	const limit = 5
	l, _ := newTestLimiter(t, limit)
	ctx := context.Background()

	for i := 0; i < 4*limit; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}

		l.mu.Lock()
		for j := range l.calls {
			windowEnd := l.calls[j].Add(Window)
			count := 0
			for _, ts := range l.calls {
				if !ts.Before(l.calls[j]) && ts.Before(windowEnd) {
					count++
				}
			}
			if count > limit {
				l.mu.Unlock()
				t.Fatalf("window starting at %v holds %d calls, limit %d", l.calls[j], count, limit)
			}
		}
		l.mu.Unlock()
	}
}

// A blocked caller waits exactly until the oldest in-window timestamp ages
// out, never longer.
func TestWaitBoundedByOldestExpiry(t *testing.T) {
	l, clock := newTestLimiter(t, 2)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	clock.advance(10 * time.Second)
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	clock.advance(5 * time.Second)

	// Window is full. Oldest call is 15s old, so the wait must be 45s.
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if len(clock.sleeps) != 1 {
		t.Fatalf("expected exactly one wait, got %v", clock.sleeps)
	}
	if got, want := clock.sleeps[0], 45*time.Second; got != want {
		t.Errorf("wait = %v, want %v", got, want)
	}
}

func TestCurrentUsagePrunesExpired(t *testing.T) {
	l, clock := newTestLimiter(t, 4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatal(err)
		}
	}
	clock.advance(Window + time.Second)

	usage := l.CurrentUsage()
	if usage.InWindow != 0 {
		t.Errorf("InWindow = %d after window elapsed, want 0", usage.InWindow)
	}
	if usage.Remaining != 4 {
		t.Errorf("Remaining = %d, want 4", usage.Remaining)
	}
	if usage.Limit != 4 {
		t.Errorf("Limit = %d, want 4", usage.Limit)
	}
}

func TestCurrentUsageDoesNotConsumeSlot(t *testing.T) {
	l, _ := newTestLimiter(t, 2)

	for i := 0; i < 10; i++ {
		_ = l.CurrentUsage()
	}
	if usage := l.CurrentUsage(); usage.InWindow != 0 {
		t.Errorf("InWindow = %d after read-only calls, want 0", usage.InWindow)
	}
}

func TestAcquireCancelledWhileWaiting(t *testing.T) {
	l, _ := newTestLimiter(t, 1)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	err := l.Acquire(cancelled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire with cancelled context = %v, want context.Canceled", err)
	}

	// The cancelled caller must not have recorded a timestamp.
	if usage := l.CurrentUsage(); usage.InWindow != 1 {
		t.Errorf("InWindow = %d after cancelled acquire, want 1", usage.InWindow)
	}
}

// Concurrent acquirers must never overshoot the ceiling: with the window
// full at exactly the limit, each goroutine gets one slot and none observe
// a stale "under limit" state.
func TestConcurrentAcquires(t *testing.T) {
	const limit = 32
	l, err := New(limit, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				t.Errorf("Acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	usage := l.CurrentUsage()
	if usage.InWindow != limit {
		t.Errorf("InWindow = %d, want %d", usage.InWindow, limit)
	}
	if usage.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", usage.Remaining)
	}

	// One more caller must block; cancel it rather than waiting a minute.
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("over-limit Acquire = %v, want deadline exceeded", err)
	}
}
