package domain

import "time"

// ModerationStatus tracks the review state of an uploaded image.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// Image is an uploaded source image usable for image-to-video requests.
// Upload, moderation and thumbnailing happen in the image service; this
// service only resolves references.
type Image struct {
	ID          string
	UserID      string
	Filename    string
	ContentType string
	FileSize    int64
	Width       int
	Height      int
	StorageKey  string
	Moderation  ModerationStatus
	CreatedAt   time.Time
}
