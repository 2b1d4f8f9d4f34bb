// Package ratelimit gates calls to the upstream classification API with two
// rolling windows (per minute, per hour) and a fixed cooldown after failures.
package ratelimit

import (
	"sync"
	"time"
)

type Limiter struct {
	mu sync.Mutex

	maxPerMinute int
	maxPerHour   int
	cooldown     time.Duration

	minuteCalls   []time.Time
	hourCalls     []time.Time
	cooldownUntil time.Time

	now func() time.Time
}

func NewLimiter(maxPerMinute, maxPerHour int, cooldown time.Duration) *Limiter {
	return &Limiter{
		maxPerMinute: maxPerMinute,
		maxPerHour:   maxPerHour,
		cooldown:     cooldown,
		now:          time.Now,
	}
}

// TryAcquire reports whether a call may proceed right now. When denied, the
// returned duration is how long the caller would have to wait before the gate
// can open. The limiter never blocks; waiting is the caller's decision.
func (l *Limiter) TryAcquire() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.cooldownUntil) {
		return false, l.cooldownUntil.Sub(now)
	}

	l.minuteCalls = prune(l.minuteCalls, now.Add(-time.Minute))
	l.hourCalls = prune(l.hourCalls, now.Add(-time.Hour))

	// Both windows may be full at once; the caller must wait out whichever
	// frees a slot last.
	var wait time.Duration
	if len(l.minuteCalls) >= l.maxPerMinute {
		wait = l.minuteCalls[0].Add(time.Minute).Sub(now)
	}
	if len(l.hourCalls) >= l.maxPerHour {
		if hourWait := l.hourCalls[0].Add(time.Hour).Sub(now); hourWait > wait {
			wait = hourWait
		}
	}
	if wait > 0 {
		return false, wait
	}
	return true, 0
}

// RecordOutcome notes the result of a permitted call. A success occupies a
// slot in both windows and clears any cooldown; a failure starts the cooldown
// from now, overriding the windows until it elapses.
func (l *Limiter) RecordOutcome(success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !success {
		l.cooldownUntil = now.Add(l.cooldown)
		return
	}
	l.cooldownUntil = time.Time{}
	l.minuteCalls = append(l.minuteCalls, now)
	l.hourCalls = append(l.hourCalls, now)
}

func prune(calls []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(calls) && !calls[i].After(cutoff) {
		i++
	}
	return calls[i:]
}
