package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/zkapauthz/internal/voucher"
)

// Add records number in the ledger. If the voucher is already present the
// ledger is left unchanged and no error is returned.
//
// tokens are stored alongside the voucher only when this call inserted it.
// Tokens already recorded for an existing voucher may have been submitted in
// a redemption attempt and must not change.
func (s *Store) Add(ctx context.Context, number string, tokens ...voucher.RandomToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add voucher: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO vouchers (number) VALUES (?)
		ON CONFLICT(number) DO NOTHING
	`, number)
	if err != nil {
		return fmt.Errorf("add voucher: insert: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add voucher: rows affected: %w", err)
	}
	if inserted > 0 {
		if err := insertTokens(ctx, tx, number, tokens); err != nil {
			return fmt.Errorf("add voucher: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add voucher: commit: %w", err)
	}
	return nil
}

// Get returns the voucher with the given number.
// Returns an error wrapping ErrNotFound if there is none.
func (s *Store) Get(ctx context.Context, number string) (voucher.Voucher, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT number, redeemed
		FROM vouchers
		WHERE number = ?
	`, number)

	v, err := scanVoucher(row)
	if errors.Is(err, sql.ErrNoRows) {
		return voucher.Voucher{}, fmt.Errorf("get voucher %q: %w", number, ErrNotFound)
	}
	if err != nil {
		return voucher.Voucher{}, fmt.Errorf("get voucher %q: %w", number, err)
	}
	return v, nil
}

// List returns every voucher in the ledger, ordered by number.
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) List(ctx context.Context) ([]voucher.Voucher, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT number, redeemed
		FROM vouchers
		ORDER BY number COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	vouchers := []voucher.Voucher{}
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("list vouchers: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vouchers: %w", err)
	}
	return vouchers, nil
}

// Unredeemed returns the numbers of vouchers not yet redeemed, ordered by
// number.
func (s *Store) Unredeemed(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT number
		FROM vouchers
		WHERE redeemed = 0
		ORDER BY number COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list unredeemed: %w", err)
	}
	defer rows.Close()

	numbers := []string{}
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, fmt.Errorf("list unredeemed: scan: %w", err)
		}
		numbers = append(numbers, number)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unredeemed: %w", err)
	}
	return numbers, nil
}

// AddTokens records tokens for an existing voucher that has none and returns
// them. If the voucher already has tokens, those are returned instead and
// tokens is discarded, so every redemption attempt for a voucher uses the
// same set.
func (s *Store) AddTokens(ctx context.Context, number string, tokens []voucher.RandomToken) ([]voucher.RandomToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("add tokens: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM vouchers WHERE number = ?`, number).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("add tokens for %q: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("add tokens: %w", err)
	}

	existing, err := queryTokens(ctx, tx, number)
	if err != nil {
		return nil, fmt.Errorf("add tokens: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	if err := insertTokens(ctx, tx, number, tokens); err != nil {
		return nil, fmt.Errorf("add tokens: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("add tokens: commit: %w", err)
	}

	stored := make([]voucher.RandomToken, len(tokens))
	copy(stored, tokens)
	return stored, nil
}

// Tokens returns the random tokens recorded for a voucher, in insertion
// order. Returns an empty slice if there are none.
func (s *Store) Tokens(ctx context.Context, number string) ([]voucher.RandomToken, error) {
	tokens, err := queryTokens(ctx, s.db, number)
	if err != nil {
		return nil, fmt.Errorf("tokens for %q: %w", number, err)
	}
	return tokens, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryTokens(ctx context.Context, q queryer, number string) ([]voucher.RandomToken, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT text
		FROM tokens
		WHERE voucher = ?
		ORDER BY rowid ASC
	`, number)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	tokens := []voucher.RandomToken{}
	for rows.Next() {
		var t voucher.RandomToken
		if err := rows.Scan(&t.Text); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

func insertTokens(ctx context.Context, tx *sql.Tx, number string, tokens []voucher.RandomToken) error {
	if len(tokens) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tokens (text, voucher) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare token insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tokens {
		if _, err := stmt.ExecContext(ctx, t.Text, number); err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVoucher(row scanner) (voucher.Voucher, error) {
	var v voucher.Voucher
	var redeemed int
	if err := row.Scan(&v.Number, &redeemed); err != nil {
		return voucher.Voucher{}, err
	}
	v.Redeemed = redeemed != 0
	return v, nil
}
