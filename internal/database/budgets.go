package database

import (
	"context"
	"fmt"

	"labovik/internal/models"
)

func (d *DB) UpsertAccount(ctx context.Context, account models.BudgetAccount) error {
	query := `INSERT INTO budget_accounts (
				account_key, allocated, spent, committed, period_start, period_end, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_key) DO UPDATE SET
				allocated = excluded.allocated,
				spent = excluded.spent,
				committed = excluded.committed,
				updated_at = excluded.updated_at`

	_, err := d.db.ExecContext(ctx, query,
		account.Key.String(),
		account.Allocated,
		account.Spent,
		account.Committed,
		account.PeriodStart.UTC(),
		account.PeriodEnd.UTC(),
		account.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (d *DB) ListAccounts(ctx context.Context) ([]models.BudgetAccount, error) {
	query := `SELECT account_key, allocated, spent, committed, period_start, period_end, updated_at
			FROM budget_accounts`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []models.BudgetAccount
	for rows.Next() {
		var a models.BudgetAccount
		var rawKey string
		if err := rows.Scan(&rawKey, &a.Allocated, &a.Spent, &a.Committed,
			&a.PeriodStart, &a.PeriodEnd, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Key, err = models.ParseAccountKey(rawKey)
		if err != nil {
			return nil, fmt.Errorf("corrupt account key %q: %v", rawKey, err)
		}
		a.PeriodStart = a.PeriodStart.UTC()
		a.PeriodEnd = a.PeriodEnd.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppendTransaction writes one ledger record. Replays of the same
// (booking_ref, kind) are silently ignored, mirroring the in-memory
// idempotency rule.
func (d *DB) AppendTransaction(ctx context.Context, tx models.LedgerTransaction) error {
	query := `INSERT OR IGNORE INTO ledger_transactions (
				id, account_key, kind, amount, booking_ref, detail, timestamp
			) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query,
		tx.ID,
		tx.AccountKey.String(),
		tx.Kind,
		tx.Amount,
		tx.BookingRef,
		tx.Detail,
		tx.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (d *DB) ListTransactions(ctx context.Context, key models.AccountKey) ([]models.LedgerTransaction, error) {
	query := `SELECT id, account_key, kind, amount, booking_ref, detail, timestamp
			FROM ledger_transactions WHERE account_key = ? ORDER BY timestamp`

	rows, err := d.db.QueryContext(ctx, query, key.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerTransaction
	for rows.Next() {
		var tx models.LedgerTransaction
		var rawKey string
		if err := rows.Scan(&tx.ID, &rawKey, &tx.Kind, &tx.Amount,
			&tx.BookingRef, &tx.Detail, &tx.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.AccountKey, err = models.ParseAccountKey(rawKey)
		if err != nil {
			return nil, fmt.Errorf("corrupt account key %q: %v", rawKey, err)
		}
		tx.Timestamp = tx.Timestamp.UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}
