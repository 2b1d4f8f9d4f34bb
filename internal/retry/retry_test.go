package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunExhaustsAllAttempts(t *testing.T) {
	t.Parallel()

	p := NewPolicy(3, time.Millisecond, 5*time.Millisecond)

	calls := 0
	ok, attempts := p.Run(context.Background(), func(context.Context) error {
		calls++
		return errors.New("always fails")
	})
	if ok {
		t.Fatal("expected failure")
	}
	if attempts != 4 || calls != 4 {
		t.Fatalf("attempts = %d, calls = %d, want 4", attempts, calls)
	}
}

func TestRunStopsOnFirstSuccess(t *testing.T) {
	t.Parallel()

	p := NewPolicy(3, time.Millisecond, 5*time.Millisecond)

	calls := 0
	ok, attempts := p.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if !ok {
		t.Fatal("expected success")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRunAbortsOnCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	p := NewPolicy(5, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var ok bool
	var attempts int
	go func() {
		defer close(done)
		ok, attempts = p.Run(ctx, func(context.Context) error {
			return errors.New("fail")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not abort on cancellation")
	}
	if ok {
		t.Fatal("expected failure after cancellation")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestDelayGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := NewPolicy(10, time.Second, 4*time.Second)

	d0 := p.delay(0)
	d1 := p.delay(1)
	d8 := p.delay(8)
	if d1 <= d0 {
		t.Fatalf("delay did not grow: %s then %s", d0, d1)
	}
	if d8 > 4*time.Second+100*time.Millisecond {
		t.Fatalf("delay exceeds cap: %s", d8)
	}
}
