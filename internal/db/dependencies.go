package db

import (
	"context"
	"time"
)

// Penalty is the outcome of recording one violation: the escalation tier the
// offender is now on and the suspension to apply for it.
type Penalty struct {
	Tier     int
	Duration time.Duration
	Severe   bool
}

// Ledger is the durable per-(group,user) violation store.
//
// RecordViolation is the only mutating entry point of the escalation state
// machine; its storage errors propagate, because a silently dropped write
// corrupts the escalation guarantee. Read paths absorb storage errors into
// safe defaults instead.
type Ledger interface {
	Close() error
	RecordViolation(ctx context.Context, groupID, userID, userName string, words []string, text string) (*Penalty, error)
	NextTier(ctx context.Context, groupID, userID string) (int, string)
	Records(ctx context.Context, groupID, userID string) ([]*ViolationRecord, error)
	GroupRecords(ctx context.Context, groupID string, limit int) ([]*ViolationRecord, error)
	Reset(ctx context.Context, groupID, userID string) (int64, error)
	CleanupBefore(ctx context.Context, cutoffDate string) (int64, error)
}
