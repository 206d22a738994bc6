// CLAUDE:SUMMARY Site allow-list CRUD — toggle, list, lookup, bulk replace.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/darkzap/dbopen"
)

// Sites returns the enabled hosts in insertion order.
func (s *Store) Sites(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT host FROM sites ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// SiteEnabled reports whether host is on the allow-list.
func (s *Store) SiteEnabled(ctx context.Context, host string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM sites WHERE host = ?`, host).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ToggleSite removes host from the allow-list when present and appends it
// otherwise. It returns whether the host is enabled afterwards.
func (s *Store) ToggleSite(ctx context.Context, host string) (enabled bool, c Change, err error) {
	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE host = ?`, host)
		if err != nil {
			return fmt.Errorf("store: toggle site: %w", err)
		}
		n, _ := res.RowsAffected()
		enabled = n == 0
		if enabled {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sites (host, position, added_at)
				VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM sites), ?)`,
				host, time.Now().UnixMilli()); err != nil {
				return fmt.Errorf("store: toggle site: %w", err)
			}
		}
		c, err = recordChange(ctx, tx, KindSites, host)
		return err
	})
	return enabled, c, err
}

// ReplaceSites overwrites the allow-list with hosts. Duplicates keep their
// first position.
func (s *Store) ReplaceSites(ctx context.Context, hosts []string) (c Change, err error) {
	hosts = Dedupe(hosts)
	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sites`); err != nil {
			return fmt.Errorf("store: replace sites: %w", err)
		}
		now := time.Now().UnixMilli()
		for i, h := range hosts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sites (host, position, added_at) VALUES (?, ?, ?)`, h, i, now); err != nil {
				return fmt.Errorf("store: replace sites: %w", err)
			}
		}
		c, err = recordChange(ctx, tx, KindSites, "")
		return err
	})
	return c, err
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Dedupe drops repeated entries, keeping the first occurrence of each.
func Dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
