// Package classifier wraps the upstream text classification call with a
// result cache, a sliding-window rate limiter and bounded retries.
package classifier

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/wordwarden/wordwarden/internal/ratelimit"
	"github.com/wordwarden/wordwarden/internal/retry"
)

// Stats are running totals for observability. They reset on restart.
type Stats struct {
	Attempted int64
	Succeeded int64
	Failed    int64
	CacheHits int64
}

type Client struct {
	detector Detector
	cache    *Cache
	limiter  *ratelimit.Limiter
	policy   retry.Policy

	// Denials with a wait at or under this threshold are waited out once;
	// longer waits surface as "unknown" immediately.
	maxShortWait time.Duration

	statsMu sync.Mutex
	stats   Stats

	logger *log.Entry
}

func NewClient(detector Detector, cache *Cache, limiter *ratelimit.Limiter, policy retry.Policy, maxShortWait time.Duration) *Client {
	return &Client{
		detector:     detector,
		cache:        cache,
		limiter:      limiter,
		policy:       policy,
		maxShortWait: maxShortWait,
		logger:       log.WithField("context", "classifier"),
	}
}

// Classify returns the verdict for text, or (nil, false) when it could not be
// determined: empty input, rate limit with a long wait, or exhausted retries.
// Callers must treat an unknown outcome as "do not act", never as "clean".
func (c *Client) Classify(ctx context.Context, text string) (*Verdict, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	ctx, span := otel.Tracer("classifier").Start(ctx, "classify")
	defer span.End()

	if verdict, ok := c.cache.Get(text); ok {
		c.statsMu.Lock()
		c.stats.CacheHits++
		c.statsMu.Unlock()
		return verdict, true
	}

	permitted, retryAfter := c.limiter.TryAcquire()
	if !permitted {
		if retryAfter > c.maxShortWait {
			c.logger.WithField("retry_after", retryAfter.String()).Debug("rate limited, giving up")
			return nil, false
		}
		if !sleepCtx(ctx, retryAfter) {
			return nil, false
		}
		if permitted, _ = c.limiter.TryAcquire(); !permitted {
			return nil, false
		}
	}

	c.statsMu.Lock()
	c.stats.Attempted++
	c.statsMu.Unlock()

	var verdict *Verdict
	ok, attempts := c.policy.Run(ctx, func(ctx context.Context) error {
		v, err := c.detector.Detect(ctx, text)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	if !ok {
		c.limiter.RecordOutcome(false)
		c.statsMu.Lock()
		c.stats.Failed++
		c.statsMu.Unlock()
		c.logger.WithField("attempts", attempts).Warn("classification failed")
		return nil, false
	}

	c.limiter.RecordOutcome(true)
	c.statsMu.Lock()
	c.stats.Succeeded++
	c.statsMu.Unlock()

	// Clean verdicts are not cached: upstream policy may change, and a stale
	// false negative should not stick around for the TTL.
	if verdict.IsViolation {
		c.cache.Put(text, *verdict)
	}
	return verdict, true
}

// Stats returns a snapshot of the running totals.
func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
