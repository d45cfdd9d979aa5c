package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// LedgerRepositoryPG implements domain.LedgerStore backed by PostgreSQL.
// Balance updates and transaction rows commit together, so the ledger always
// sums to the user's stored balance.
type LedgerRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepositoryPG.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{pool: pool}
}

// Apply adjusts the user's balance by entry.Amount and records the ledger
// row in one transaction. A debit that would drive the balance negative
// fails with domain.ErrInsufficientCredits and changes nothing.
func (r *LedgerRepositoryPG) Apply(ctx context.Context, entry *domain.LedgerEntry) (domain.Credits, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balanceAfter domain.Credits
	row := tx.QueryRow(ctx, `
UPDATE users
SET credits_balance = credits_balance + $2,
    updated_at = NOW()
WHERE id = $1
  AND credits_balance + $2 >= 0
RETURNING credits_balance;
`, entry.UserID, entry.Amount)
	if err := row.Scan(&balanceAfter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, r.classifyRejection(ctx, tx, entry.UserID)
		}
		return 0, fmt.Errorf("update balance: %w", err)
	}

	entry.BalanceAfter = balanceAfter
	_, err = tx.Exec(ctx, `
INSERT INTO transactions (id, user_id, video_id, type, amount, balance_after, description, created_at)
VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8);
`,
		entry.ID,
		entry.UserID,
		entry.JobID,
		entry.Type,
		entry.Amount,
		entry.BalanceAfter,
		entry.Description,
		entry.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit ledger tx: %w", err)
	}
	return balanceAfter, nil
}

// classifyRejection distinguishes a missing user from a balance too low for
// the debit.
func (r *LedgerRepositoryPG) classifyRejection(ctx context.Context, tx pgx.Tx, userID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientCredits
}

// ListByUser returns the user's ledger entries newest first.
func (r *LedgerRepositoryPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, COALESCE(video_id::text, ''), type, amount, balance_after, description, created_at
FROM transactions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.JobID, &e.Type, &e.Amount, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
