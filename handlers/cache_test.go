package handlers

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStaleCacheServesStaleWhileRefreshing(t *testing.T) {
	var builds atomic.Int32
	c := newStaleCache("test", func() int {
		return int(builds.Add(1))
	})

	if got := c.Get(); got != 1 {
		t.Fatalf("first Get = %d, want 1", got)
	}
	if got := c.Get(); got != 1 {
		t.Errorf("cached Get = %d, want 1 (no rebuild)", got)
	}

	c.Invalidate()

	// The invalidated value is still served immediately; the rebuild runs in
	// the background.
	if got := c.Get(); got != 1 {
		t.Errorf("stale Get = %d, want 1", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for builds.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if builds.Load() != 2 {
		t.Fatalf("builds = %d, want 2 after invalidation", builds.Load())
	}
	// Eventually the refreshed value lands.
	for time.Now().Before(deadline) {
		if c.Get() == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("refreshed value never observed")
}

func TestStaleCacheRecoversFromPanic(t *testing.T) {
	var calls atomic.Int32
	c := newStaleCache("panicky", func() int {
		if calls.Add(1) == 2 {
			panic("walk failed")
		}
		return int(calls.Load())
	})

	if got := c.Get(); got != 1 {
		t.Fatalf("first Get = %d, want 1", got)
	}
	c.Invalidate()
	c.Get() // triggers the panicking rebuild

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// The old value survives the panic and another invalidation still works.
	if got := c.Get(); got != 1 {
		t.Errorf("Get after panic = %d, want 1", got)
	}
	c.Invalidate()
	for time.Now().Before(deadline) {
		if c.Get() == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("cache never recovered after panic")
}
