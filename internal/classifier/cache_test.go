package classifier

import (
	"fmt"
	"testing"
	"time"
)

func newTestCache(ttl time.Duration, capacity int) (*Cache, *time.Time) {
	c := NewCache(ttl, capacity)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return current }
	return c, &current
}

func TestNormalizationSharesEntries(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(time.Hour, 10)
	c.Put("  Bad Text  ", Verdict{IsViolation: true, MatchedTerms: []string{"bad"}})

	variants := []string{"bad text", "BAD TEXT", "\tbad text\n", "  Bad Text  "}
	for _, v := range variants {
		got, ok := c.Get(v)
		if !ok {
			t.Fatalf("expected hit for %q", v)
		}
		if !got.IsViolation || len(got.MatchedTerms) != 1 {
			t.Fatalf("unexpected verdict for %q: %+v", v, got)
		}
	}

	if _, ok := c.Get("different text"); ok {
		t.Fatal("unexpected hit for different text")
	}
}

func TestTTLExpiryOnGet(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(time.Minute, 10)
	c.Put("text", Verdict{IsViolation: true})

	*clock = clock.Add(59 * time.Second)
	if _, ok := c.Get("text"); !ok {
		t.Fatal("expected hit before TTL")
	}

	*clock = clock.Add(2 * time.Second)
	if _, ok := c.Get("text"); ok {
		t.Fatal("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed, len = %d", c.Len())
	}
}

func TestCapacityEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(time.Hour, 3)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("text-%d", i), Verdict{IsViolation: true})
		*clock = clock.Add(time.Second)
	}

	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}
	if _, ok := c.Get("text-0"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	for i := 1; i < 4; i++ {
		if _, ok := c.Get(fmt.Sprintf("text-%d", i)); !ok {
			t.Fatalf("entry text-%d unexpectedly evicted", i)
		}
	}
}

func TestPutOverwrites(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(time.Minute, 10)
	c.Put("text", Verdict{IsViolation: true, MatchedTerms: []string{"a"}})
	*clock = clock.Add(50 * time.Second)
	c.Put("text", Verdict{IsViolation: true, MatchedTerms: []string{"a", "b"}})

	*clock = clock.Add(30 * time.Second)
	got, ok := c.Get("text")
	if !ok {
		t.Fatal("expected hit, overwrite should refresh the timestamp")
	}
	if len(got.MatchedTerms) != 2 {
		t.Fatalf("expected overwritten verdict, got %+v", got)
	}
}
