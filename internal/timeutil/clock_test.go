package timeutil

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	clock.Advance(90 * time.Second)
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestMockClock_AutoStep(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewMockClock(start)
	clock.AutoStep(time.Millisecond)

	a, b, c := clock.Now(), clock.Now(), clock.Now()
	if !a.Equal(start) || b.Sub(a) != time.Millisecond || c.Sub(b) != time.Millisecond {
		t.Errorf("AutoStep times = %v, %v, %v", a, b, c)
	}
	if got := clock.Since(start); got != 3*time.Millisecond {
		t.Errorf("Since() = %v, want 3ms", got)
	}
}

func TestMockClock_Concurrent(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	clock.AutoStep(time.Nanosecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				clock.Now()
			}
		}()
	}
	wg.Wait()

	if got := clock.Since(time.Unix(0, 0)); got != 800*time.Nanosecond {
		t.Errorf("Since() = %v, want 800ns", got)
	}
}
