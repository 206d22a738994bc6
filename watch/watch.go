// Package watch carries a write counter in PRAGMA user_version so that
// processes sharing an SQLite file can notice each other's commits.
//
// Writers call Bump inside their transaction. Readers run a Poller, which
// reads the counter on a ticker and calls an action whenever it moved.
//
//	p := watch.NewPoller(db, 500*time.Millisecond, logger)
//	go p.Run(ctx, svc.Poll)
package watch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserVersion reads PRAGMA user_version.
func UserVersion(ctx context.Context, q Querier) (int64, error) {
	var v int64
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("watch: read user_version: %w", err)
	}
	return v, nil
}

// Bump increments PRAGMA user_version within tx and returns the new value.
// The pragma takes no bound parameters, hence the formatted statement.
func Bump(ctx context.Context, tx *sql.Tx) (int64, error) {
	v, err := UserVersion(ctx, tx)
	if err != nil {
		return 0, err
	}
	v++
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return 0, fmt.Errorf("watch: bump user_version: %w", err)
	}
	return v, nil
}

// Poller notices user_version moves. Seen and Stats are safe from any
// goroutine; Run must only be called once.
type Poller struct {
	db       *sql.DB
	interval time.Duration
	logger   *slog.Logger

	seen    atomic.Int64
	polls   atomic.Int64
	fired   atomic.Int64
	failed  atomic.Int64
	started atomic.Bool
}

// Stats are point-in-time poller counters.
type Stats struct {
	Seen   int64 `json:"seen"`
	Polls  int64 `json:"polls"`
	Fired  int64 `json:"fired"`
	Failed int64 `json:"failed"`
}

// NewPoller returns a Poller reading db every interval (1s when zero).
func NewPoller(db *sql.DB, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{db: db, interval: interval, logger: logger}
}

// Seen returns the last counter value whose action succeeded.
func (p *Poller) Seen() int64 { return p.seen.Load() }

// Stats returns the current counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Seen:   p.seen.Load(),
		Polls:  p.polls.Load(),
		Fired:  p.fired.Load(),
		Failed: p.failed.Load(),
	}
}

// Run records the current counter, then polls until ctx is done. A failed
// action leaves Seen unchanged so the action is retried on the next tick.
func (p *Poller) Run(ctx context.Context, action func(context.Context) error) {
	if !p.started.CompareAndSwap(false, true) {
		p.logger.Error("watch: poller already running")
		return
	}
	if v, err := UserVersion(ctx, p.db); err != nil {
		p.logger.Warn("watch: initial read failed", "error", err)
	} else {
		p.seen.Store(v)
	}

	t := time.NewTicker(p.interval)
	defer t.Stop()
	p.logger.Debug("watch: polling", "interval", p.interval, "seen", p.seen.Load())
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.poll(ctx, action)
		}
	}
}

// poll does one read and, when the counter moved, one action call. It
// reports whether the action ran successfully.
func (p *Poller) poll(ctx context.Context, action func(context.Context) error) bool {
	p.polls.Add(1)
	v, err := UserVersion(ctx, p.db)
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("watch: poll failed", "error", err)
		return false
	}
	if v == p.seen.Load() {
		return false
	}
	if err := action(ctx); err != nil {
		p.failed.Add(1)
		p.logger.Error("watch: action failed", "version", v, "error", err)
		return false
	}
	p.fired.Add(1)
	p.seen.Store(v)
	return true
}
