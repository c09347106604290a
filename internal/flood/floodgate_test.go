package flood

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFloodgate_Allow_BlocksBurst(t *testing.T) {
	clock := newFakeClock()
	fg := New(3, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		if !fg.Allow("10.0.0.1") {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if fg.Allow("10.0.0.1") {
		t.Error("4th request should be blocked")
	}
}

func TestFloodgate_Allow_Refills(t *testing.T) {
	clock := newFakeClock()
	fg := New(2, WithClock(clock.Now))

	fg.Allow("a")
	fg.Allow("a")
	if fg.Allow("a") {
		t.Fatal("Third request should be blocked")
	}

	// One token every 30 seconds at 2 per minute
	clock.Advance(31 * time.Second)
	if !fg.Allow("a") {
		t.Error("Request after refill should be allowed")
	}
	if fg.Allow("a") {
		t.Error("Only one token should have been refilled")
	}

	clock.Advance(time.Minute)
	for i := 0; i < 2; i++ {
		if !fg.Allow("a") {
			t.Errorf("Request %d after full refill should be allowed", i+1)
		}
	}
}

func TestFloodgate_Allow_PerRequester(t *testing.T) {
	fg := New(1, WithClock(newFakeClock().Now))

	if !fg.Allow("a") {
		t.Error("First request from a should be allowed")
	}
	if !fg.Allow("b") {
		t.Error("First request from b should be allowed")
	}
	if fg.Allow("a") {
		t.Error("Second request from a should be blocked")
	}
}

func TestFloodgate_Allow_Disabled(t *testing.T) {
	fg := New(0)

	for i := 0; i < 100; i++ {
		if !fg.Allow("a") {
			t.Fatalf("Request %d should be allowed when limiting is disabled", i+1)
		}
	}
	if stats := fg.GetStats(); stats.ActiveRequesters != 0 {
		t.Errorf("GetStats().ActiveRequesters = %d, want 0", stats.ActiveRequesters)
	}
}

func TestFloodgate_Cleanup(t *testing.T) {
	clock := newFakeClock()
	fg := New(5, WithClock(clock.Now))

	fg.Allow("idle")
	clock.Advance(idleTimeout + time.Second)
	fg.Allow("active")

	fg.performCleanup()

	stats := fg.GetStats()
	if stats.ActiveRequesters != 1 {
		t.Errorf("GetStats().ActiveRequesters = %d, want 1", stats.ActiveRequesters)
	}
	if stats.LimitPerMinute != 5 {
		t.Errorf("GetStats().LimitPerMinute = %d, want 5", stats.LimitPerMinute)
	}
}

func TestFloodgate_Run_StopsOnCancel(t *testing.T) {
	fg := New(5)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- fg.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

func TestFloodgate_ConcurrentAccess(t *testing.T) {
	fg := New(50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := string(rune('a' + id))
			for j := 0; j < 20; j++ {
				fg.Allow(key)
			}
		}(i)
	}
	wg.Wait()

	if stats := fg.GetStats(); stats.ActiveRequesters != 10 {
		t.Errorf("GetStats().ActiveRequesters = %d, want 10", stats.ActiveRequesters)
	}
}
