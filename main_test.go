package main

import (
	"testing"
	"time"
)

func TestRecoverableRestartsUntilCleanReturn(t *testing.T) {
	oldDelay := restartDelay
	restartDelay = time.Millisecond
	defer func() { restartDelay = oldDelay }()

	// Two panics, then a clean run. recoverable must not return until the
	// clean run finishes; returning after the first panic would let main
	// exit and kill the restarted work.
	calls := 0
	recoverable(func() {
		calls++
		if calls < 3 {
			panic("boom")
		}
	})

	if calls != 3 {
		t.Fatalf("f ran %d times, want 3 (restart after each panic)", calls)
	}
}
