package store

import (
	"context"
	"fmt"

	"github.com/roach88/zkapauthz/internal/voucher"
)

// InsertPassesForVoucher stores passes obtained by redeeming a voucher and
// marks the voucher redeemed, in one transaction. Passes already present are
// ignored, so a repeated call after a retried redemption is harmless.
func (s *Store) InsertPassesForVoucher(ctx context.Context, number string, passes []voucher.Pass) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert passes: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `UPDATE vouchers SET redeemed = 1 WHERE number = ?`, number)
	if err != nil {
		return fmt.Errorf("insert passes: mark redeemed: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert passes: rows affected: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("insert passes for %q: %w", number, ErrNotFound)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO passes (text) VALUES (?) ON CONFLICT(text) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("insert passes: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range passes {
		if _, err := stmt.ExecContext(ctx, p.Text); err != nil {
			return fmt.Errorf("insert passes: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert passes: commit: %w", err)
	}
	return nil
}

// ExtractPasses removes and returns up to count passes, oldest first. Fewer
// are returned when fewer are available.
func (s *Store) ExtractPasses(ctx context.Context, count int) ([]voucher.Pass, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("extract passes: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	rows, err := tx.QueryContext(ctx, `
		SELECT rowid, text
		FROM passes
		ORDER BY rowid ASC
		LIMIT ?
	`, count)
	if err != nil {
		return nil, fmt.Errorf("extract passes: select: %w", err)
	}

	var rowids []int64
	passes := []voucher.Pass{}
	for rows.Next() {
		var rowid int64
		var p voucher.Pass
		if err := rows.Scan(&rowid, &p.Text); err != nil {
			rows.Close()
			return nil, fmt.Errorf("extract passes: scan: %w", err)
		}
		rowids = append(rowids, rowid)
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("extract passes: iterate: %w", err)
	}
	rows.Close()

	for _, rowid := range rowids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM passes WHERE rowid = ?`, rowid); err != nil {
			return nil, fmt.Errorf("extract passes: delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("extract passes: commit: %w", err)
	}
	return passes, nil
}

// CountPasses returns the number of unspent passes.
func (s *Store) CountPasses(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM passes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count passes: %w", err)
	}
	return n, nil
}
