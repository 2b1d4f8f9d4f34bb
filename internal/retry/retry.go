// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func NewPolicy(maxRetries int, baseDelay, maxDelay time.Duration) Policy {
	return Policy{MaxRetries: maxRetries, BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// Run attempts op up to MaxRetries+1 times, sleeping between attempts with
// exponential backoff plus per-attempt jitter. It reports whether any attempt
// succeeded and how many attempts were used. The last error is not returned;
// callers act on the boolean. Cancelling ctx during a backoff aborts at once.
func (p Policy) Run(ctx context.Context, op func(ctx context.Context) error) (bool, int) {
	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		attempts++
		err := op(ctx)
		if err == nil {
			return true, attempts
		}
		if attempt == p.MaxRetries {
			log.WithField("context", "retry").WithError(err).Debug("attempts exhausted")
			return false, attempts
		}
		if ctx.Err() != nil {
			return false, attempts
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, attempts
		case <-timer.C:
		}
	}
	return false, attempts
}

// delay is base*2^attempt capped at MaxDelay, plus a deterministic jitter
// derived from the attempt count so concurrent callers spread out.
func (p Policy) delay(attempt int) time.Duration {
	backoff := p.BaseDelay << uint(attempt)
	if backoff > p.MaxDelay || backoff <= 0 {
		backoff = p.MaxDelay
	}
	jitter := time.Duration((attempt+1)*37%100) * time.Millisecond
	return backoff + jitter
}
