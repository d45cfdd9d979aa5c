package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// VideoJobRepositoryPG implements domain.VideoJobRepository backed by
// PostgreSQL.
type VideoJobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVideoJobRepository creates a new video job repository.
func NewVideoJobRepository(pool *pgxpool.Pool) *VideoJobRepositoryPG {
	return &VideoJobRepositoryPG{pool: pool}
}

const videoJobColumns = `
id, user_id, provider, COALESCE(image_id::text, ''), prompt, duration_seconds,
width, height, fps, provider_params, status, progress,
COALESCE(provider_job_id, ''), COALESCE(error_message, ''),
COALESCE(artifact_key, ''), file_size, actual_duration,
credits_cost, credits_refunded, created_at, started_at, completed_at, updated_at`

// Create inserts a new job record.
func (r *VideoJobRepositoryPG) Create(ctx context.Context, job *domain.VideoJob) error {
	query := `
INSERT INTO videos (id, user_id, provider, image_id, prompt, duration_seconds,
                    width, height, fps, provider_params, status, progress,
                    credits_cost, credits_refunded, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Provider,
		job.ImageID,
		job.Prompt,
		job.DurationSeconds,
		job.Width,
		job.Height,
		job.FPS,
		job.ProviderParams,
		job.Status,
		job.Progress,
		job.CreditsCost,
		job.CreditsRefunded,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *VideoJobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.VideoJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+videoJobColumns+` FROM videos WHERE id = $1`, id)
	return scanVideoJob(row)
}

// GetForUser fetches a job only when it belongs to the given user.
func (r *VideoJobRepositoryPG) GetForUser(ctx context.Context, id, userID string) (*domain.VideoJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+videoJobColumns+` FROM videos WHERE id = $1 AND user_id = $2`, id, userID)
	return scanVideoJob(row)
}

// ListByUser returns the user's jobs newest first with a total count for
// pagination. status filters when non-nil.
func (r *VideoJobRepositoryPG) ListByUser(ctx context.Context, userID string, status *domain.JobStatus, limit, offset int) ([]domain.VideoJob, int, error) {
	query := `
SELECT ` + videoJobColumns + `
FROM videos
WHERE user_id = $1
  AND ($2::text IS NULL OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4;
`
	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	rows, err := r.pool.Query(ctx, query, userID, statusArg, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []domain.VideoJob
	for rows.Next() {
		job, err := scanVideoJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countRow := r.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM videos WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)`, userID, statusArg)
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// MarkProcessing records the provider's external id. Only a pending job can
// move to processing.
func (r *VideoJobRepositoryPG) MarkProcessing(ctx context.Context, id, providerJobID string, startedAt time.Time) error {
	query := `
UPDATE videos
SET status = 'processing',
    provider_job_id = $2,
    started_at = $3,
    updated_at = NOW()
WHERE id = $1
  AND status = 'pending';
`
	_, err := r.pool.Exec(ctx, query, id, providerJobID, startedAt)
	return err
}

// UpdateProgress advances the job's progress. Stored progress only moves
// forward.
func (r *VideoJobRepositoryPG) UpdateProgress(ctx context.Context, id string, progress int) error {
	query := `
UPDATE videos
SET progress = GREATEST(progress, $2),
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, progress)
	return err
}

// MarkCompleted records the stored artifact and moves the job to completed.
func (r *VideoJobRepositoryPG) MarkCompleted(ctx context.Context, id, artifactKey string, fileSize int64, actualDuration float64, completedAt time.Time) error {
	query := `
UPDATE videos
SET status = 'completed',
    artifact_key = $2,
    file_size = $3,
    actual_duration = $4,
    progress = 100,
    completed_at = $5,
    updated_at = NOW()
WHERE id = $1
  AND status IN ('pending', 'processing');
`
	_, err := r.pool.Exec(ctx, query, id, artifactKey, fileSize, actualDuration, completedAt)
	return err
}

// MarkFailed moves a non-terminal job to failed with the given message.
func (r *VideoJobRepositoryPG) MarkFailed(ctx context.Context, id, errorMessage string) error {
	query := `
UPDATE videos
SET status = 'failed',
    error_message = $2,
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1
  AND status IN ('pending', 'processing');
`
	_, err := r.pool.Exec(ctx, query, id, errorMessage)
	return err
}

// MarkCancelled moves a non-terminal job to cancelled. The boolean reports
// whether this call won the transition.
func (r *VideoJobRepositoryPG) MarkCancelled(ctx context.Context, id string) (bool, error) {
	query := `
UPDATE videos
SET status = 'cancelled',
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1
  AND status IN ('pending', 'processing');
`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimRefund atomically marks the job's cost as refunded. At most one
// caller per job ever gets true, which is what keeps refunds single-shot.
func (r *VideoJobRepositoryPG) ClaimRefund(ctx context.Context, id string) (bool, error) {
	query := `
UPDATE videos
SET credits_refunded = credits_cost,
    updated_at = NOW()
WHERE id = $1
  AND credits_cost > 0
  AND credits_refunded = 0;
`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListStale returns non-terminal jobs that have not been touched since
// cutoff. Used by startup recovery.
func (r *VideoJobRepositoryPG) ListStale(ctx context.Context, cutoff time.Time) ([]domain.VideoJob, error) {
	query := `
SELECT ` + videoJobColumns + `
FROM videos
WHERE status IN ('pending', 'processing')
  AND updated_at < $1
ORDER BY updated_at ASC;
`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.VideoJob
	for rows.Next() {
		job, err := scanVideoJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Delete removes a job record.
func (r *VideoJobRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanVideoJob(row pgx.Row) (*domain.VideoJob, error) {
	var job domain.VideoJob
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Provider,
		&job.ImageID,
		&job.Prompt,
		&job.DurationSeconds,
		&job.Width,
		&job.Height,
		&job.FPS,
		&job.ProviderParams,
		&job.Status,
		&job.Progress,
		&job.ProviderJobID,
		&job.ErrorMessage,
		&job.ArtifactKey,
		&job.FileSize,
		&job.ActualDuration,
		&job.CreditsCost,
		&job.CreditsRefunded,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}
