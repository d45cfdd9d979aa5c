package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
)

// Ledger provides atomic debit/credit operations against user balances,
// producing the auditable transaction trail. Atomicity lives in the store;
// this layer owns entry construction and the signing convention (debits
// negative, credits positive).
type Ledger struct {
	store  domain.LedgerStore
	logger infra.Logger
}

// NewLedger creates a ledger backed by the given store.
func NewLedger(store domain.LedgerStore, logger infra.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Debit removes amount from the user's balance and records a deduction
// entry. It fails with ErrInsufficientCredits, without any side effect,
// when the balance does not cover the amount.
func (l *Ledger) Debit(ctx context.Context, userID string, amount domain.Credits, description, jobID string) (domain.Credits, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: debit amount must be positive, got %s", amount)
	}
	entry := &domain.LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		JobID:       jobID,
		Type:        domain.TransactionDeduction,
		Amount:      -amount,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	balance, err := l.store.Apply(ctx, entry)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return 0, err
		}
		return 0, fmt.Errorf("ledger: apply debit: %w", err)
	}
	l.logger.Info().
		Str("user_id", userID).
		Str("job_id", jobID).
		Str("amount", amount.String()).
		Str("balance", balance.String()).
		Msg("ledger: debit applied")
	return balance, nil
}

// Credit adds amount to the user's balance and records an entry of the
// given type (refund, bonus or purchase).
func (l *Ledger) Credit(ctx context.Context, userID string, amount domain.Credits, txType domain.TransactionType, description, jobID string) (domain.Credits, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: credit amount must be positive, got %s", amount)
	}
	entry := &domain.LedgerEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		JobID:       jobID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	balance, err := l.store.Apply(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("ledger: apply credit: %w", err)
	}
	l.logger.Info().
		Str("user_id", userID).
		Str("job_id", jobID).
		Str("type", string(txType)).
		Str("amount", amount.String()).
		Str("balance", balance.String()).
		Msg("ledger: credit applied")
	return balance, nil
}

// Refund is a convenience wrapper for job refunds.
func (l *Ledger) Refund(ctx context.Context, userID string, amount domain.Credits, description, jobID string) (domain.Credits, error) {
	return l.Credit(ctx, userID, amount, domain.TransactionRefund, description, jobID)
}

// Transactions lists a user's ledger trail, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit, offset int) ([]domain.LedgerEntry, error) {
	return l.store.ListByUser(ctx, userID, limit, offset)
}
