package domain

import "time"

// UserTier enumerates subscription tiers.
type UserTier string

const (
	UserTierFree       UserTier = "free"
	UserTierPro        UserTier = "pro"
	UserTierEnterprise UserTier = "enterprise"
)

// User represents an authenticated account. Registration and authentication
// live behind the gateway; this service only reads identity and balance.
type User struct {
	ID             string
	Email          string
	Tier           UserTier
	IsActive       bool
	CreditsBalance Credits
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
