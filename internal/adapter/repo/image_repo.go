package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ImageRepositoryPG implements domain.ImageRepository backed by PostgreSQL.
type ImageRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewImageRepository creates a new ImageRepositoryPG.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepositoryPG {
	return &ImageRepositoryPG{pool: pool}
}

// GetForUser fetches an image only when it belongs to the given user.
func (r *ImageRepositoryPG) GetForUser(ctx context.Context, id, userID string) (*domain.Image, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, filename, content_type, file_size, width, height, storage_key, moderation_status, created_at
FROM images
WHERE id = $1
  AND user_id = $2`, id, userID)

	var img domain.Image
	if err := row.Scan(
		&img.ID,
		&img.UserID,
		&img.Filename,
		&img.ContentType,
		&img.FileSize,
		&img.Width,
		&img.Height,
		&img.StorageKey,
		&img.Moderation,
		&img.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &img, nil
}
