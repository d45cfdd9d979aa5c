package domain

import "time"

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TransactionPurchase  TransactionType = "purchase"
	TransactionDeduction TransactionType = "deduction"
	TransactionRefund    TransactionType = "refund"
	TransactionBonus     TransactionType = "bonus"
)

// LedgerEntry is one immutable row of a user's credit trail. Amount is
// signed (deductions negative) and BalanceAfter records the running balance
// immediately after the amount was applied.
type LedgerEntry struct {
	ID           string
	UserID       string
	JobID        string
	Type         TransactionType
	Amount       Credits
	BalanceAfter Credits
	Description  string
	CreatedAt    time.Time
}
