package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	_ "modernc.org/sqlite"
)

// ErrPoolExhausted is returned when no handle becomes free within the
// acquire timeout. Callers should treat it as transient and may retry the
// whole operation.
var ErrPoolExhausted = errors.New("connection pool exhausted")

type PoolStats struct {
	Opened    int
	Idle      int
	InUse     int
	Acquired  int64
	Exhausted int64
}

// Pool is a bounded set of reusable sqlite handles. Each handle is a
// single-connection *sqlx.DB with write-ahead journaling and NORMAL
// synchronization; full fsync durability is not a goal here, the ledger's
// tier logic is what must be correct.
type Pool struct {
	dsn            string
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
	maxConns       int

	mu        sync.Mutex
	idle      []*sqlx.DB
	inUse     map[*sqlx.DB]struct{}
	opened    int
	acquired  int64
	exhausted int64
	closed    bool

	logger *log.Entry
}

func NewPool(dbPath string, minConns, maxConns int, acquireTimeout time.Duration) (*Pool, error) {
	p := &Pool{
		dsn: fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
			dbPath,
		),
		sem:            semaphore.NewWeighted(int64(maxConns)),
		acquireTimeout: acquireTimeout,
		maxConns:       maxConns,
		inUse:          make(map[*sqlx.DB]struct{}),
		logger:         log.WithField("context", "sqlite-pool"),
	}

	for i := 0; i < minConns; i++ {
		handle, err := p.open()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("prewarm handle %d: %w", i, err)
		}
		p.idle = append(p.idle, handle)
	}
	return p, nil
}

// Acquire returns an exclusive handle, reusing an idle one or dialing a new
// one while under the maximum. It blocks up to the acquire timeout (or less,
// if ctx expires first) and then fails with ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*sqlx.DB, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		p.mu.Lock()
		p.exhausted++
		p.mu.Unlock()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrPoolExhausted
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem.Release(1)
		return nil, errors.New("pool is closed")
	}

	var handle *sqlx.DB
	if n := len(p.idle); n > 0 {
		handle = p.idle[n-1]
		p.idle = p.idle[:n-1]
	} else {
		var err error
		handle, err = p.open()
		if err != nil {
			p.sem.Release(1)
			return nil, fmt.Errorf("open handle: %w", err)
		}
	}
	p.inUse[handle] = struct{}{}
	p.acquired++
	return handle, nil
}

// Release returns a handle to the pool. Releasing a handle that is not
// checked out is a no-op.
func (p *Pool) Release(handle *sqlx.DB) {
	if handle == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inUse[handle]; !ok {
		return
	}
	delete(p.inUse, handle)
	if p.closed {
		if err := handle.Close(); err != nil {
			p.logger.WithError(err).Warn("close released handle")
		}
		p.opened--
	} else {
		p.idle = append(p.idle, handle)
	}
	p.sem.Release(1)
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Opened:    p.opened,
		Idle:      len(p.idle),
		InUse:     len(p.inUse),
		Acquired:  p.acquired,
		Exhausted: p.exhausted,
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var firstErr error
	for _, handle := range p.idle {
		if err := handle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.opened--
	}
	p.idle = nil
	// handles still in use are closed on release
	return firstErr
}

// open dials a new single-connection handle. Callers hold no more than
// maxConns permits, so opened can never exceed the maximum.
func (p *Pool) open() (*sqlx.DB, error) {
	handle, err := sqlx.Open("sqlite", p.dsn)
	if err != nil {
		return nil, err
	}
	handle.SetMaxOpenConns(1)
	p.opened++
	return handle, nil
}
