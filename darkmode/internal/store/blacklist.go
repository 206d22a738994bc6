// CLAUDE:SUMMARY Per-host selector blacklist CRUD — ordered read, full replace with de-duplication, append.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/darkzap/dbopen"
)

// Blacklist returns the selectors of host in list order. Unknown hosts have
// an empty list.
func (s *Store) Blacklist(ctx context.Context, host string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT selector FROM blacklist_selectors WHERE host = ? ORDER BY position`, host)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// BlacklistHosts returns every host with at least one selector.
func (s *Store) BlacklistHosts(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT host FROM blacklist_selectors ORDER BY host`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// ReplaceBlacklist overwrites the list of host. Duplicates keep their first
// position; an empty list deletes the host's entries.
func (s *Store) ReplaceBlacklist(ctx context.Context, host string, list []string) (c Change, err error) {
	list = Dedupe(list)
	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM blacklist_selectors WHERE host = ?`, host); err != nil {
			return fmt.Errorf("store: replace blacklist: %w", err)
		}
		now := time.Now().UnixMilli()
		for i, sel := range list {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO blacklist_selectors (host, selector, position, created_at)
				VALUES (?, ?, ?, ?)`, host, sel, i, now); err != nil {
				return fmt.Errorf("store: replace blacklist: %w", err)
			}
		}
		c, err = recordChange(ctx, tx, KindBlacklist, host)
		return err
	})
	return c, err
}

// AppendBlacklist adds sel at the end of host's list. It reports false when
// sel was already listed, in which case nothing is written.
func (s *Store) AppendBlacklist(ctx context.Context, host, sel string) (added bool, c Change, err error) {
	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO blacklist_selectors (host, selector, position, created_at)
			VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM blacklist_selectors WHERE host = ?), ?)`,
			host, sel, host, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("store: append blacklist: %w", err)
		}
		n, _ := res.RowsAffected()
		added = n > 0
		if !added {
			return nil
		}
		c, err = recordChange(ctx, tx, KindBlacklist, host)
		return err
	})
	return added, c, err
}
