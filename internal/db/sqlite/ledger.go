package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"

	"github.com/wordwarden/wordwarden/internal/db"
	"github.com/wordwarden/wordwarden/resources"
)

// tierLadder saturates at the third tier: every occurrence past the third in
// the same violation-day cycle keeps the tier-3 duration.
type tierLadder [3]time.Duration

func (l tierLadder) duration(tier int) time.Duration {
	if tier > len(l) {
		tier = len(l)
	}
	if tier < 1 {
		tier = 1
	}
	return l[tier-1]
}

type ledgerClient struct {
	pool          *Pool
	ladder        tierLadder
	resetHour     int
	retentionDays int
	maxTextLen    int

	logger *log.Entry
	now    func() time.Time
}

type LedgerConfig struct {
	DBPath            string
	MinConns          int
	MaxConns          int
	AcquireTimeout    time.Duration
	FirstBanDuration  time.Duration
	SecondBanDuration time.Duration
	ThirdBanDuration  time.Duration
	ResetHour         int
	RetentionDays     int
	MaxTextLen        int
}

func NewLedger(cfg LedgerConfig) (db.Ledger, error) {
	pool, err := NewPool(cfg.DBPath, cfg.MinConns, cfg.MaxConns, cfg.AcquireTimeout)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	c := &ledgerClient{
		pool:          pool,
		ladder:        tierLadder{cfg.FirstBanDuration, cfg.SecondBanDuration, cfg.ThirdBanDuration},
		resetHour:     cfg.ResetHour,
		retentionDays: cfg.RetentionDays,
		maxTextLen:    cfg.MaxTextLen,
		logger:        log.WithField("context", "ledger"),
		now:           time.Now,
	}

	if err := c.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return c, nil
}

func (c *ledgerClient) migrate(ctx context.Context) error {
	handle, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Release(handle)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(handle.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		return err
	}
	if n > 0 {
		c.logger.Infof("applied %d migrations", n)
	}
	return nil
}

func (c *ledgerClient) Close() error {
	return c.pool.Close()
}

// violationDay is the calendar date of t for escalation accounting: the day
// rolls over at the configured reset hour, not at midnight.
func (c *ledgerClient) violationDay(t time.Time) string {
	if t.Hour() < c.resetHour {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format("2006-01-02")
}

const recordViolationQuery = `
	INSERT INTO violations
		(group_id, user_id, user_name, violation_count, forbidden_words,
		 original_text, ban_duration, last_violation_date, created_at)
	VALUES (?, ?, ?, 1, ?, ?, ?, ?, datetime('now'))
	ON CONFLICT(group_id, user_id) DO UPDATE SET
		violation_count = CASE
			WHEN violations.last_violation_date < excluded.last_violation_date THEN 1
			ELSE violations.violation_count + 1 END,
		ban_duration = CASE
			WHEN violations.last_violation_date < excluded.last_violation_date THEN ?
			WHEN violations.violation_count + 1 = 2 THEN ?
			ELSE ? END,
		user_name = excluded.user_name,
		forbidden_words = excluded.forbidden_words,
		original_text = excluded.original_text,
		last_violation_date = excluded.last_violation_date,
		created_at = datetime('now')
	RETURNING violation_count, ban_duration
`

// RecordViolation upserts the pair's row, computing the new tier inside the
// statement so concurrent violations for the same pair serialize on the
// database and no increment is lost.
func (c *ledgerClient) RecordViolation(ctx context.Context, groupID, userID, userName string, words []string, text string) (*db.Penalty, error) {
	handle, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire handle: %w", err)
	}
	defer c.pool.Release(handle)

	now := c.now()
	day := c.violationDay(now)
	wordsValue, err := db.WordList(words).Value()
	if err != nil {
		return nil, fmt.Errorf("serialize words: %w", err)
	}

	var (
		count        int
		durationSecs int64
	)
	err = handle.QueryRowxContext(ctx, recordViolationQuery,
		groupID,
		userID,
		userName,
		wordsValue,
		truncate(text, c.maxTextLen),
		int64(c.ladder.duration(1).Seconds()),
		day,
		int64(c.ladder.duration(1).Seconds()),
		int64(c.ladder.duration(2).Seconds()),
		int64(c.ladder.duration(3).Seconds()),
	).Scan(&count, &durationSecs)
	if err != nil {
		return nil, fmt.Errorf("upsert violation: %w", err)
	}

	// Piggybacked retention sweep; its failure never fails the upsert.
	cutoff := now.AddDate(0, 0, -c.retentionDays).Format("2006-01-02")
	if _, err := handle.ExecContext(ctx, `DELETE FROM violations WHERE last_violation_date < ?`, cutoff); err != nil {
		c.logger.WithError(err).Warn("retention cleanup failed")
	}

	return &db.Penalty{
		Tier:     count,
		Duration: time.Duration(durationSecs) * time.Second,
		Severe:   count >= 3,
	}, nil
}

// NextTier reports the tier a violation committed right now would land on,
// without persisting anything. Storage problems collapse to the safe default
// of tier 1: under-escalating is preferred over failing the moderation path.
func (c *ledgerClient) NextTier(ctx context.Context, groupID, userID string) (int, string) {
	today := c.violationDay(c.now())

	handle, err := c.pool.Acquire(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("tier lookup: acquire failed")
		return 1, today
	}
	defer c.pool.Release(handle)

	var rec db.ViolationRecord
	err = handle.GetContext(ctx, &rec, `
		SELECT group_id, user_id, user_name, violation_count, forbidden_words,
		       original_text, ban_duration, last_violation_date, created_at
		FROM violations
		WHERE group_id = ? AND user_id = ?
		ORDER BY last_violation_date DESC
		LIMIT 1
	`, groupID, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.WithError(err).Warn("tier lookup failed, assuming clean")
		}
		return 1, today
	}

	if rec.LastViolationDate < today {
		return 1, today
	}
	return rec.ViolationCount + 1, rec.LastViolationDate
}

func (c *ledgerClient) Records(ctx context.Context, groupID, userID string) ([]*db.ViolationRecord, error) {
	handle, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Release(handle)

	var records []*db.ViolationRecord
	err = handle.SelectContext(ctx, &records, `
		SELECT group_id, user_id, user_name, violation_count, forbidden_words,
		       original_text, ban_duration, last_violation_date, created_at
		FROM violations
		WHERE group_id = ? AND user_id = ?
		ORDER BY last_violation_date DESC
	`, groupID, userID)
	return records, err
}

func (c *ledgerClient) GroupRecords(ctx context.Context, groupID string, limit int) ([]*db.ViolationRecord, error) {
	handle, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Release(handle)

	var records []*db.ViolationRecord
	err = handle.SelectContext(ctx, &records, `
		SELECT group_id, user_id, user_name, violation_count, forbidden_words,
		       original_text, ban_duration, last_violation_date, created_at
		FROM violations
		WHERE group_id = ?
		ORDER BY last_violation_date DESC, violation_count DESC
		LIMIT ?
	`, groupID, limit)
	return records, err
}

// Reset deletes the pair's record, or every record in the group when userID
// is empty.
func (c *ledgerClient) Reset(ctx context.Context, groupID, userID string) (int64, error) {
	handle, err := c.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer c.pool.Release(handle)

	var result sql.Result
	if userID == "" {
		result, err = handle.ExecContext(ctx, `DELETE FROM violations WHERE group_id = ?`, groupID)
	} else {
		result, err = handle.ExecContext(ctx, `DELETE FROM violations WHERE group_id = ? AND user_id = ?`, groupID, userID)
	}
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (c *ledgerClient) CleanupBefore(ctx context.Context, cutoffDate string) (int64, error) {
	handle, err := c.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer c.pool.Release(handle)

	result, err := handle.ExecContext(ctx, `DELETE FROM violations WHERE last_violation_date < ?`, cutoffDate)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
