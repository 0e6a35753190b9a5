package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// testClock is a manually advanced clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCheckAndRecord_Threshold(t *testing.T) {
	clk := newTestClock()
	l := NewSlidingWindowLimiter(5, 15*time.Minute, WithClock(clk))

	// 5 attempts within the window are recorded
	for i := 0; i < 5; i++ {
		result, err := l.CheckAndRecord("subject-1", "totp")
		if err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
		if want := 5 - (i + 1); result.AttemptsRemaining != want {
			t.Errorf("attempt %d: expected %d remaining, got %d", i+1, want, result.AttemptsRemaining)
		}
		clk.Advance(time.Second)
	}

	// the 6th fails and is not recorded
	_, err := l.CheckAndRecord("subject-1", "totp")
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("6th attempt should fail with ExceededError, got %v", err)
	}
	if exceeded.RetryAfter <= 0 {
		t.Errorf("RetryAfter should be positive, got %s", exceeded.RetryAfter)
	}
	if exceeded.RetryAfter > 15*time.Minute {
		t.Errorf("RetryAfter should not exceed the window, got %s", exceeded.RetryAfter)
	}
}

func TestCheckAndRecord_WindowElapses(t *testing.T) {
	clk := newTestClock()
	l := NewSlidingWindowLimiter(5, 15*time.Minute, WithClock(clk))

	for i := 0; i < 5; i++ {
		if _, err := l.CheckAndRecord("subject-1", "totp"); err != nil {
			t.Fatalf("attempt %d should be allowed: %v", i+1, err)
		}
	}
	if _, err := l.CheckAndRecord("subject-1", "totp"); err == nil {
		t.Fatal("6th attempt should be rejected")
	}

	// once the window elapses, a new attempt succeeds
	clk.Advance(15*time.Minute + time.Second)
	if _, err := l.CheckAndRecord("subject-1", "totp"); err != nil {
		t.Fatalf("attempt after window elapsed should be allowed: %v", err)
	}
}

func TestCheckAndRecord_WindowSlides(t *testing.T) {
	clk := newTestClock()
	l := NewSlidingWindowLimiter(2, 15*time.Minute, WithClock(clk))

	if _, err := l.CheckAndRecord("subject-1", "totp"); err != nil {
		t.Fatal(err)
	}
	clk.Advance(10 * time.Minute)
	if _, err := l.CheckAndRecord("subject-1", "totp"); err != nil {
		t.Fatal(err)
	}

	// both attempts still inside the trailing window
	clk.Advance(4 * time.Minute)
	_, err := l.CheckAndRecord("subject-1", "totp")
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", err)
	}
	// the oldest attempt leaves the window in 1 minute
	if exceeded.RetryAfter != time.Minute {
		t.Errorf("expected RetryAfter of 1m, got %s", exceeded.RetryAfter)
	}

	// first attempt slides out, capacity opens up again
	clk.Advance(2 * time.Minute)
	if _, err := l.CheckAndRecord("subject-1", "totp"); err != nil {
		t.Fatalf("attempt after oldest slid out should be allowed: %v", err)
	}
}

func TestCheckAndRecord_IndependentKeys(t *testing.T) {
	clk := newTestClock()
	l := NewSlidingWindowLimiter(1, 15*time.Minute, WithClock(clk))

	if _, err := l.CheckAndRecord("subject-1", "totp"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.CheckAndRecord("subject-1", "totp"); err == nil {
		t.Fatal("same key should be exhausted")
	}

	// other subjects and other attempt kinds never contend
	if _, err := l.CheckAndRecord("subject-2", "totp"); err != nil {
		t.Errorf("different subject should not contend: %v", err)
	}
	if _, err := l.CheckAndRecord("subject-1", "backup_code"); err != nil {
		t.Errorf("different attempt kind should not contend: %v", err)
	}
}

func TestClear(t *testing.T) {
	clk := newTestClock()
	l := NewSlidingWindowLimiter(2, 15*time.Minute, WithClock(clk))

	l.CheckAndRecord("subject-1", "totp")
	l.CheckAndRecord("subject-1", "totp")
	if _, err := l.CheckAndRecord("subject-1", "totp"); err == nil {
		t.Fatal("window should be exhausted")
	}

	l.Clear("subject-1", "totp")

	if _, err := l.CheckAndRecord("subject-1", "totp"); err != nil {
		t.Fatalf("attempt after Clear should be allowed: %v", err)
	}
}

// Concurrency invariant: N concurrent calls for the same key never allow
// more than threshold recorded attempts, regardless of interleaving.
func TestCheckAndRecord_Concurrent(t *testing.T) {
	const (
		threshold  = 5
		goroutines = 50
	)

	clk := newTestClock()
	l := NewSlidingWindowLimiter(threshold, 15*time.Minute, WithClock(clk))

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.CheckAndRecord("subject-1", "totp"); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != threshold {
		t.Errorf("expected exactly %d allowed attempts, got %d", threshold, allowed)
	}
}

func TestGetStats(t *testing.T) {
	clk := newTestClock()
	l := NewSlidingWindowLimiter(5, 15*time.Minute, WithClock(clk))

	l.CheckAndRecord("subject-1", "totp")
	l.CheckAndRecord("subject-2", "totp")
	l.CheckAndRecord("subject-2", "backup_code")

	stats := l.GetStats()
	if stats.ActiveWindows != 3 {
		t.Errorf("expected 3 active windows, got %d", stats.ActiveWindows)
	}
	if stats.Threshold != 5 {
		t.Errorf("expected threshold 5, got %d", stats.Threshold)
	}
}

func BenchmarkCheckAndRecord(b *testing.B) {
	l := NewSlidingWindowLimiter(1000000, 15*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.CheckAndRecord("bench-subject", "totp")
	}
}
