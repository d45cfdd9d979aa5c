package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ProviderRepositoryPG implements domain.ProviderRepository backed by
// PostgreSQL.
type ProviderRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProviderRepository creates a new ProviderRepositoryPG.
func NewProviderRepository(pool *pgxpool.Pool) *ProviderRepositoryPG {
	return &ProviderRepositoryPG{pool: pool}
}

const providerColumns = `
id, name, type, supports_image_input, max_duration_seconds, max_width, max_height,
cost_per_second, image_multiplier, is_active, is_healthy, failure_count,
last_health_check, created_at, updated_at`

// GetByType fetches a provider record by its type key.
func (r *ProviderRepositoryPG) GetByType(ctx context.Context, typ string) (*domain.ProviderDescriptor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE type = $1`, typ)
	return scanProvider(row)
}

// ListActive returns all active provider records.
func (r *ProviderRepositoryPG) ListActive(ctx context.Context) ([]domain.ProviderDescriptor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+providerColumns+` FROM providers WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProviderDescriptor
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanProvider(row pgx.Row) (*domain.ProviderDescriptor, error) {
	var p domain.ProviderDescriptor
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Type,
		&p.SupportsImageInput,
		&p.MaxDurationSeconds,
		&p.MaxWidth,
		&p.MaxHeight,
		&p.CostPerSecond,
		&p.ImageMultiplier,
		&p.IsActive,
		&p.IsHealthy,
		&p.FailureCount,
		&p.LastHealthCheck,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
