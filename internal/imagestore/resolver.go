// Package imagestore resolves a user's uploaded images into URLs that video
// providers can fetch for image-to-video generation.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"server/internal/domain"
)

// Presigner mints time-limited download URLs for stored objects.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Resolver looks up an image, checks ownership and moderation, and returns
// a URL the provider can pull the image from.
type Resolver struct {
	images    domain.ImageRepository
	presigner Presigner
	ttl       time.Duration
}

func NewResolver(images domain.ImageRepository, presigner Presigner, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{images: images, presigner: presigner, ttl: ttl}
}

// ResolveURL returns a fetchable URL for the user's image. Images the user
// does not own and images that failed moderation resolve to
// domain.ErrImageNotFound.
func (r *Resolver) ResolveURL(ctx context.Context, userID, imageID string) (string, error) {
	img, err := r.images.GetForUser(ctx, imageID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrImageNotFound
		}
		return "", fmt.Errorf("load image %s: %w", imageID, err)
	}
	if img.Moderation == domain.ModerationRejected {
		return "", domain.ErrImageNotFound
	}

	url, err := r.presigner.PresignedURL(ctx, img.StorageKey, r.ttl)
	if err != nil {
		return "", fmt.Errorf("presign image %s: %w", imageID, err)
	}
	return url, nil
}
