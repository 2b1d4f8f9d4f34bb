package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) (*ledgerClient, *time.Time) {
	t.Helper()

	ledger, err := NewLedger(LedgerConfig{
		DBPath:            filepath.Join(t.TempDir(), "test.db"),
		MinConns:          1,
		MaxConns:          4,
		AcquireTimeout:    2 * time.Second,
		FirstBanDuration:  time.Minute,
		SecondBanDuration: 10 * time.Minute,
		ThirdBanDuration:  24 * time.Hour,
		ResetHour:         4,
		RetentionDays:     30,
		MaxTextLen:        500,
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	client := ledger.(*ledgerClient)
	current := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return current }
	return client, &current
}

func TestEscalationLadderSameDay(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	want := []struct {
		tier     int
		duration time.Duration
		severe   bool
	}{
		{1, time.Minute, false},
		{2, 10 * time.Minute, false},
		{3, 24 * time.Hour, true},
		{4, 24 * time.Hour, true},
	}
	for i, w := range want {
		penalty, err := ledger.RecordViolation(ctx, "g1", "u1", "alice", []string{"bad"}, "bad text")
		if err != nil {
			t.Fatalf("violation %d: %v", i+1, err)
		}
		if penalty.Tier != w.tier || penalty.Duration != w.duration || penalty.Severe != w.severe {
			t.Fatalf("violation %d: got %+v, want %+v", i+1, penalty, w)
		}
	}

	records, err := ledger.Records(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected a single row per pair, got %d", len(records))
	}
	if records[0].ViolationCount != 4 {
		t.Fatalf("stored count = %d, want 4", records[0].ViolationCount)
	}
}

func TestNewViolationDayResetsTier(t *testing.T) {
	t.Parallel()

	ledger, clock := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := ledger.RecordViolation(ctx, "g1", "u1", "alice", nil, "x"); err != nil {
			t.Fatalf("violation %d: %v", i, err)
		}
	}

	*clock = clock.AddDate(0, 0, 1)
	penalty, err := ledger.RecordViolation(ctx, "g1", "u1", "alice", nil, "x")
	if err != nil {
		t.Fatalf("next-day violation: %v", err)
	}
	if penalty.Tier != 1 || penalty.Duration != time.Minute {
		t.Fatalf("expected cycle restart, got %+v", penalty)
	}
}

func TestResetHourBoundary(t *testing.T) {
	t.Parallel()

	// Reset hour is 4. A violation at 03:00 books on the prior violation-day;
	// a second at 05:00 the same calendar date opens a fresh cycle at tier 1.
	ledger, clock := newTestLedger(t)
	ctx := context.Background()

	*clock = time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC)
	penalty, err := ledger.RecordViolation(ctx, "g1", "u1", "alice", nil, "x")
	if err != nil {
		t.Fatalf("03:00 violation: %v", err)
	}
	if penalty.Tier != 1 {
		t.Fatalf("03:00 violation tier = %d, want 1", penalty.Tier)
	}
	if tier, _ := ledger.NextTier(ctx, "g1", "u1"); tier != 2 {
		t.Fatalf("pre-boundary next tier = %d, want 2", tier)
	}

	*clock = time.Date(2025, 6, 10, 5, 0, 0, 0, time.UTC)
	if tier, _ := ledger.NextTier(ctx, "g1", "u1"); tier != 1 {
		t.Fatalf("post-boundary next tier = %d, want 1", tier)
	}
	penalty, err = ledger.RecordViolation(ctx, "g1", "u1", "alice", nil, "x")
	if err != nil {
		t.Fatalf("05:00 violation: %v", err)
	}
	if penalty.Tier != 1 {
		t.Fatalf("05:00 violation tier = %d, want 1 (boundary crossed)", penalty.Tier)
	}
}

func TestSameCycleAcrossBoundaryHour(t *testing.T) {
	t.Parallel()

	// Both violations land after the reset hour on the same date: same cycle.
	ledger, clock := newTestLedger(t)
	ctx := context.Background()

	*clock = time.Date(2025, 6, 10, 4, 30, 0, 0, time.UTC)
	if _, err := ledger.RecordViolation(ctx, "g1", "u1", "alice", nil, "x"); err != nil {
		t.Fatalf("04:30 violation: %v", err)
	}

	*clock = time.Date(2025, 6, 10, 5, 0, 0, 0, time.UTC)
	penalty, err := ledger.RecordViolation(ctx, "g1", "u1", "alice", nil, "x")
	if err != nil {
		t.Fatalf("05:00 violation: %v", err)
	}
	if penalty.Tier != 2 {
		t.Fatalf("05:00 violation tier = %d, want 2 (same cycle)", penalty.Tier)
	}
}

func TestConcurrentEscalationLosesNoUpdates(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.RecordViolation(ctx, "g1", "u1", "alice", nil, "x"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent violation: %v", err)
	}

	records, err := ledger.Records(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 1 || records[0].ViolationCount != n {
		t.Fatalf("stored count = %d (rows %d), want %d in one row", records[0].ViolationCount, len(records), n)
	}
}

func TestNextTierIsSideEffectFree(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if tier, _ := ledger.NextTier(ctx, "g1", "nobody"); tier != 1 {
		t.Fatalf("clean user next tier = %d, want 1", tier)
	}

	if _, err := ledger.RecordViolation(ctx, "g1", "u1", "alice", nil, "x"); err != nil {
		t.Fatalf("violation: %v", err)
	}
	for i := 0; i < 3; i++ {
		if tier, _ := ledger.NextTier(ctx, "g1", "u1"); tier != 2 {
			t.Fatalf("read %d changed state: next tier = %d, want 2", i, tier)
		}
	}
}

func TestRetentionCleanup(t *testing.T) {
	t.Parallel()

	ledger, clock := newTestLedger(t)
	ctx := context.Background()

	// Old enough to fall before the cutoff below, recent enough to survive
	// the piggybacked 30-day sweep of the second insert.
	*clock = time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	if _, err := ledger.RecordViolation(ctx, "g1", "old-user", "bob", nil, "x"); err != nil {
		t.Fatalf("old violation: %v", err)
	}
	*clock = time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	if _, err := ledger.RecordViolation(ctx, "g1", "recent-user", "carol", nil, "x"); err != nil {
		t.Fatalf("recent violation: %v", err)
	}

	removed, err := ledger.CleanupBefore(ctx, "2025-06-01")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d rows, want 1", removed)
	}

	if records, _ := ledger.Records(ctx, "g1", "old-user"); len(records) != 0 {
		t.Fatal("old record survived cleanup")
	}
	if records, _ := ledger.Records(ctx, "g1", "recent-user"); len(records) != 1 {
		t.Fatal("recent record removed by cleanup")
	}
}

func TestRecordViolationPiggybacksCleanup(t *testing.T) {
	t.Parallel()

	ledger, clock := newTestLedger(t)
	ctx := context.Background()

	*clock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := ledger.RecordViolation(ctx, "g1", "ancient", "bob", nil, "x"); err != nil {
		t.Fatalf("ancient violation: %v", err)
	}

	// 100 days later, way past the 30-day retention window.
	*clock = time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	if _, err := ledger.RecordViolation(ctx, "g2", "fresh", "carol", nil, "x"); err != nil {
		t.Fatalf("fresh violation: %v", err)
	}

	if records, _ := ledger.Records(ctx, "g1", "ancient"); len(records) != 0 {
		t.Fatal("expired record not swept by upsert")
	}
}

func TestResetRecords(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2", "u3"} {
		if _, err := ledger.RecordViolation(ctx, "g1", user, user, nil, "x"); err != nil {
			t.Fatalf("violation for %s: %v", user, err)
		}
	}
	if _, err := ledger.RecordViolation(ctx, "g2", "u1", "u1", nil, "x"); err != nil {
		t.Fatalf("violation in g2: %v", err)
	}

	affected, err := ledger.Reset(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("reset pair: %v", err)
	}
	if affected != 1 {
		t.Fatalf("reset pair affected %d, want 1", affected)
	}

	affected, err = ledger.Reset(ctx, "g1", "")
	if err != nil {
		t.Fatalf("reset group: %v", err)
	}
	if affected != 2 {
		t.Fatalf("reset group affected %d, want 2", affected)
	}

	if records, _ := ledger.GroupRecords(ctx, "g2", 10); len(records) != 1 {
		t.Fatal("reset leaked into another group")
	}
}

func TestOriginalTextTruncated(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	long := make([]rune, 600)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := ledger.RecordViolation(ctx, "g1", "u1", "alice", nil, string(long)); err != nil {
		t.Fatalf("violation: %v", err)
	}

	records, err := ledger.Records(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if got := len([]rune(records[0].OriginalText)); got != 500 {
		t.Fatalf("stored text length = %d, want 500", got)
	}
}
