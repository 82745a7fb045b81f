package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tronledger/tronledger/internal/domain"
)

// ─── Ledger Operations ──────────────────────────────────────────────────────

// LoadLedger returns every stored transfer, most recent first, with its note.
func (d *DB) LoadLedger(ctx context.Context) ([]domain.TransactionRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT t.hash, t.amount, t.direction, t.from_addr, t.to_addr, t.block_time,
		       t.block_number, t.wallet, t.status, COALESCE(n.text, '')
		FROM transactions t
		LEFT JOIN notes n ON n.hash = t.hash
		ORDER BY t.block_time DESC, t.hash ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TransactionRecord
	for rows.Next() {
		var (
			r         domain.TransactionRecord
			amountStr string
			dir       string
			status    string
			blockMs   int64
		)
		if err := rows.Scan(&r.Hash, &amountStr, &dir, &r.From, &r.To, &blockMs,
			&r.BlockNumber, &r.Wallet, &status, &r.Note); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: amount %q: %w", r.Hash, amountStr, err)
		}
		r.Amount = amount
		r.Direction = domain.Direction(dir)
		r.Status = domain.TxStatus(status)
		r.Timestamp = time.UnixMilli(blockMs).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveLedger upserts every record. Notes are not written here.
func (d *DB) SaveLedger(ctx context.Context, records []domain.TransactionRecord) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (hash, amount, direction, from_addr, to_addr, block_time, block_number, wallet, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(hash) DO UPDATE SET
			status     = excluded.status,
			updated_at = datetime('now')
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Hash, r.Amount.String(), string(r.Direction), r.From, r.To,
			r.Timestamp.UnixMilli(), r.BlockNumber, r.Wallet, string(r.Status)); err != nil {
			return fmt.Errorf("save transaction %s: %w", r.Hash, err)
		}
	}
	return tx.Commit()
}

// ─── Note Operations ────────────────────────────────────────────────────────

// LoadNotes returns all notes keyed by transaction hash.
func (d *DB) LoadNotes(ctx context.Context) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT hash, text FROM notes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make(map[string]string)
	for rows.Next() {
		var hash, text string
		if err := rows.Scan(&hash, &text); err != nil {
			return nil, err
		}
		notes[hash] = text
	}
	return notes, rows.Err()
}

// LoadNote returns the note for hash, or "" when none is stored.
func (d *DB) LoadNote(ctx context.Context, hash string) (string, error) {
	var text string
	err := d.db.QueryRowContext(ctx, `SELECT text FROM notes WHERE hash = ?`, hash).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return text, err
}

// SaveNote stores a note. An empty text removes it.
func (d *DB) SaveNote(ctx context.Context, hash, text string) error {
	if text == "" {
		_, err := d.db.ExecContext(ctx, `DELETE FROM notes WHERE hash = ?`, hash)
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO notes (hash, text, created_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(hash) DO UPDATE SET text = excluded.text
	`, hash, text)
	return err
}
