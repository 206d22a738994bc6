// CLAUDE:SUMMARY SQLite handle for darkmode preferences — opens DB with dbopen pragmas, applies schema, records changes.
// Package store provides the SQLite persistence layer for darkmode.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/darkzap/dbopen"
	"github.com/hazyhaar/darkzap/watch"
)

// Store is the darkmode database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the darkmode SQLite database at path and applies
// the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Kind names what a change touched.
type Kind string

const (
	KindSites     Kind = "sites"
	KindBlacklist Kind = "blacklist"
)

// Change is one row of the change log.
type Change struct {
	Seq  int64  `json:"seq"`
	Kind Kind   `json:"kind"`
	Host string `json:"host,omitempty"`
	At   int64  `json:"at"`
}

// recordChange appends to the change log and bumps PRAGMA user_version so
// pollers in any process see the write.
func recordChange(ctx context.Context, tx *sql.Tx, kind Kind, host string) (Change, error) {
	c := Change{Kind: kind, Host: host, At: time.Now().UnixMilli()}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO changes (kind, host, at) VALUES (?, ?, ?)`, string(kind), host, c.At)
	if err != nil {
		return Change{}, fmt.Errorf("store: record change: %w", err)
	}
	if c.Seq, err = res.LastInsertId(); err != nil {
		return Change{}, fmt.Errorf("store: record change: %w", err)
	}

	if _, err := watch.Bump(ctx, tx); err != nil {
		return Change{}, fmt.Errorf("store: record change: %w", err)
	}
	return c, nil
}

// ChangesSince returns the changes with a sequence number above seq, oldest
// first.
func (s *Store) ChangesSince(ctx context.Context, seq int64) ([]Change, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT seq, kind, host, at FROM changes WHERE seq > ? ORDER BY seq`, seq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		var kind string
		if err := rows.Scan(&c.Seq, &kind, &c.Host, &c.At); err != nil {
			return nil, err
		}
		c.Kind = Kind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastSeq returns the highest change sequence number, 0 on an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.DB.QueryRowContext(ctx, `SELECT MAX(seq) FROM changes`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// PruneChanges deletes change rows older than before (unix ms).
func (s *Store) PruneChanges(ctx context.Context, before int64) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM changes WHERE at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
