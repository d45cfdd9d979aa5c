package credit

import (
	"context"
	"errors"
	"testing"

	"server/internal/domain"
	"server/internal/infra"
)

type fakeStore struct {
	balance domain.Credits
	entries []domain.LedgerEntry
}

func (f *fakeStore) Apply(ctx context.Context, entry *domain.LedgerEntry) (domain.Credits, error) {
	if f.balance+entry.Amount < 0 {
		return 0, domain.ErrInsufficientCredits
	}
	f.balance += entry.Amount
	entry.BalanceAfter = f.balance
	f.entries = append(f.entries, *entry)
	return f.balance, nil
}

func (f *fakeStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.LedgerEntry, error) {
	out := make([]domain.LedgerEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func TestDebitRecordsNegativeAmount(t *testing.T) {
	store := &fakeStore{balance: domain.CreditsFromFloat(10)}
	ledger := NewLedger(store, infra.NewTestLogger())

	balance, err := ledger.Debit(context.Background(), "user-1", domain.CreditsFromFloat(1.50), "Video generation (sora)", "job-1")
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if balance != domain.CreditsFromFloat(8.50) {
		t.Errorf("balance = %s, want 8.50", balance)
	}
	if len(store.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(store.entries))
	}
	e := store.entries[0]
	if e.Amount != -domain.CreditsFromFloat(1.50) {
		t.Errorf("amount = %s, want -1.50", e.Amount)
	}
	if e.Type != domain.TransactionDeduction {
		t.Errorf("type = %s", e.Type)
	}
	if e.BalanceAfter != balance {
		t.Errorf("balance_after = %s, want %s", e.BalanceAfter, balance)
	}
}

func TestDebitInsufficientPassesThrough(t *testing.T) {
	store := &fakeStore{balance: domain.CreditsFromFloat(1)}
	ledger := NewLedger(store, infra.NewTestLogger())

	_, err := ledger.Debit(context.Background(), "user-1", domain.CreditsFromFloat(2), "too much", "job-1")
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if len(store.entries) != 0 {
		t.Errorf("entries recorded on failed debit")
	}
}

func TestDebitRejectsNonPositive(t *testing.T) {
	ledger := NewLedger(&fakeStore{}, infra.NewTestLogger())
	for _, amount := range []domain.Credits{0, -100} {
		if _, err := ledger.Debit(context.Background(), "user-1", amount, "x", "job-1"); err == nil {
			t.Errorf("amount %d accepted, want error", amount)
		}
	}
}

func TestRefundRestoresBalance(t *testing.T) {
	store := &fakeStore{balance: domain.CreditsFromFloat(10)}
	ledger := NewLedger(store, infra.NewTestLogger())

	cost := domain.CreditsFromFloat(3.25)
	if _, err := ledger.Debit(context.Background(), "user-1", cost, "Video generation (wan)", "job-1"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	balance, err := ledger.Refund(context.Background(), "user-1", cost, "Refund: Video generation failed", "job-1")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if balance != domain.CreditsFromFloat(10) {
		t.Errorf("balance = %s, want 10.00", balance)
	}
	if store.entries[1].Type != domain.TransactionRefund {
		t.Errorf("refund type = %s", store.entries[1].Type)
	}
	if store.entries[1].Amount != cost {
		t.Errorf("refund amount = %s, want %s", store.entries[1].Amount, cost)
	}
}
