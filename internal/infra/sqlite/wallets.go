package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tronledger/tronledger/internal/domain"
)

// ─── Wallet Operations ──────────────────────────────────────────────────────

// LoadWallets returns tracked wallets in insertion order.
func (d *DB) LoadWallets(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, address, nickname, balance, last_sync, created_at
		FROM wallets ORDER BY position ASC, created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		var (
			w         domain.Wallet
			balance   sql.NullString
			lastSync  sql.NullInt64
			createdMs int64
		)
		if err := rows.Scan(&w.ID, &w.Address, &w.Nickname, &balance, &lastSync, &createdMs); err != nil {
			return nil, err
		}
		if balance.Valid {
			b, err := decimal.NewFromString(balance.String)
			if err != nil {
				return nil, fmt.Errorf("wallet %s: balance %q: %w", w.ID, balance.String, err)
			}
			w.Balance = decimal.NewNullDecimal(b)
		}
		if lastSync.Valid {
			w.LastSync = time.UnixMilli(lastSync.Int64).UTC()
		}
		w.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}

// SaveWallets replaces the stored wallet list with wallets.
func (d *DB) SaveWallets(ctx context.Context, wallets []domain.Wallet) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM wallets`); err != nil {
		return err
	}
	for i, w := range wallets {
		var balance sql.NullString
		if w.Balance.Valid {
			balance = sql.NullString{String: w.Balance.Decimal.String(), Valid: true}
		}
		var lastSync sql.NullInt64
		if !w.LastSync.IsZero() {
			lastSync = sql.NullInt64{Int64: w.LastSync.UnixMilli(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (id, address, nickname, balance, last_sync, created_at, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, w.ID, w.Address, w.Nickname, balance, lastSync, w.CreatedAt.UnixMilli(), i); err != nil {
			return fmt.Errorf("save wallet %s: %w", w.ID, err)
		}
	}
	return tx.Commit()
}
