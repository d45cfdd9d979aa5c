package domain

import "time"

// ProviderDescriptor mirrors the providers table: the advertised capability
// record plus operational health. Health fields are advisory and maintained
// by an out-of-band checker.
type ProviderDescriptor struct {
	ID   string
	Name string
	Type string

	SupportsImageInput bool
	MaxDurationSeconds int
	MaxWidth           int
	MaxHeight          int
	CostPerSecond      float64
	ImageMultiplier    float64

	IsActive        bool
	IsHealthy       bool
	FailureCount    int
	LastHealthCheck *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
