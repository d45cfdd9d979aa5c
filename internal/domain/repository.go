package domain

import (
	"context"
	"time"
)

// UserRepository defines access methods for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// VideoJobRepository defines persistence for video jobs. Mutations are
// narrow, single-purpose operations so each lifecycle transition maps to one
// atomic statement.
type VideoJobRepository interface {
	Create(ctx context.Context, job *VideoJob) error
	GetByID(ctx context.Context, id string) (*VideoJob, error)
	GetForUser(ctx context.Context, id, userID string) (*VideoJob, error)
	ListByUser(ctx context.Context, userID string, status *JobStatus, limit, offset int) ([]VideoJob, int, error)
	MarkProcessing(ctx context.Context, id, providerJobID string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	MarkCompleted(ctx context.Context, id, artifactKey string, fileSize int64, actualDuration float64, completedAt time.Time) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	// MarkCancelled transitions a pending or processing job to cancelled and
	// reports whether the transition happened.
	MarkCancelled(ctx context.Context, id string) (bool, error)
	// ClaimRefund sets credits_refunded = credits_cost if and only if no
	// refund was recorded before. The ledger credit must only follow a
	// successful claim; this is what makes refunds idempotent per job.
	ClaimRefund(ctx context.Context, id string) (bool, error)
	// ListStale returns non-terminal jobs not touched since the cutoff,
	// used for crash recovery at startup.
	ListStale(ctx context.Context, cutoff time.Time) ([]VideoJob, error)
	Delete(ctx context.Context, id string) error
}

// LedgerStore applies ledger entries atomically against the user balance.
type LedgerStore interface {
	// Apply adjusts the user's balance by entry.Amount (negative for
	// deductions), fills in entry.BalanceAfter, persists the entry and
	// returns the resulting balance. A debit that would drive the balance
	// negative fails with ErrInsufficientCredits and leaves no trace.
	Apply(ctx context.Context, entry *LedgerEntry) (Credits, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]LedgerEntry, error)
}

// ImageRepository resolves uploaded source-image references.
type ImageRepository interface {
	GetForUser(ctx context.Context, id, userID string) (*Image, error)
}

// ProviderRepository reads the seeded provider descriptors.
type ProviderRepository interface {
	GetByType(ctx context.Context, providerType string) (*ProviderDescriptor, error)
	ListActive(ctx context.Context) ([]ProviderDescriptor, error)
}
