package provider

import (
	"context"

	"server/internal/domain"
)

// JobState is the normalized remote generation state reported by a backend.
type JobState string

const (
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// Request carries the provider-facing generation parameters. It is immutable
// once admitted; providers normalize it into their own wire shapes.
type Request struct {
	Prompt          string
	DurationSeconds int
	Width           int
	Height          int
	FPS             int
	ImageURL        string
	Params          map[string]any
}

// Submission is the result of starting a generation.
type Submission struct {
	ExternalID       string
	State            JobState
	Progress         int
	EstimatedSeconds int
}

// Status is an idempotent snapshot of a running generation. ArtifactURL is
// populated only for backends that expose a direct download location and
// only once completed.
type Status struct {
	State        JobState
	Progress     int
	ErrorMessage string
	ArtifactURL  string
}

// Capabilities is the static per-provider capability record.
type Capabilities struct {
	MaxDurationSeconds   int
	MaxWidth             int
	MaxHeight            int
	SupportsImageInput   bool
	CostPerSecond        float64
	ImageCostMultiplier  float64
	MaxPromptLength      int
	SupportedResolutions []string
	AspectRatios         []string
	Formats              []string
	Models               []string
}

// Generator is the uniform contract every generation backend implements.
// Backends differ wildly in protocol shape (synchronous job ids vs.
// long-running operations, signed URLs vs. API-mediated downloads); the
// lifecycle manager only ever speaks these verbs and never branches on
// provider identity.
type Generator interface {
	Name() string
	// Validate checks the request against this backend's capabilities. It
	// must not touch the network; it runs before any credit is debited.
	Validate(req Request) error
	// EstimateCost is pure: it prices the request without side effects so
	// pricing can be previewed without starting a job.
	EstimateCost(req Request) domain.Credits
	Submit(ctx context.Context, req Request) (*Submission, error)
	// Poll is an idempotent, side-effect-free status read.
	Poll(ctx context.Context, externalID string) (*Status, error)
	FetchArtifact(ctx context.Context, externalID string) ([]byte, error)
	// Cancel is best effort; false means "not supported or not confirmed".
	// It never fails for an already-terminal remote job.
	Cancel(ctx context.Context, externalID string) bool
	Capabilities() Capabilities
}
