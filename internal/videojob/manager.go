package videojob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/provider"
)

// ProviderResolver yields a configured generator for a provider type or
// alias. Unknown types map to domain.ErrUnsupportedProvider, known types
// without credentials to domain.ErrProviderUnavailable.
type ProviderResolver interface {
	Resolve(name string) (provider.Generator, error)
}

// CreditLedger is the slice of the billing service the manager needs.
type CreditLedger interface {
	Debit(ctx context.Context, userID string, amount domain.Credits, description, jobID string) (domain.Credits, error)
	Refund(ctx context.Context, userID string, amount domain.Credits, description, jobID string) (domain.Credits, error)
}

// ArtifactStore persists generated video bytes under an opaque key.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ImageResolver turns a user's uploaded image id into a URL a provider can
// fetch during image-to-video generation.
type ImageResolver interface {
	ResolveURL(ctx context.Context, userID, imageID string) (string, error)
}

// JobEvent describes a lifecycle transition worth telling the outside world
// about.
type JobEvent struct {
	Event        string           `json:"event"`
	JobID        string           `json:"job_id"`
	UserID       string           `json:"user_id"`
	Provider     string           `json:"provider"`
	Status       domain.JobStatus `json:"status"`
	ArtifactKey  string           `json:"artifact_key,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

const (
	EventJobCompleted = "video.completed"
	EventJobFailed    = "video.failed"
	EventJobCancelled = "video.cancelled"
)

// Notifier delivers job events best-effort. Implementations must never
// block the lifecycle on delivery problems.
type Notifier interface {
	JobEvent(ctx context.Context, evt JobEvent)
}

// Config tunes the manager's worker pool and poll loop.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	Workers         int
	QueueSize       int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 120
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// Deps collects the manager's collaborators.
type Deps struct {
	Registry ProviderResolver
	Jobs     domain.VideoJobRepository
	Ledger   CreditLedger
	Store    ArtifactStore
	Images   ImageResolver
	Notifier Notifier
	Clock    Clock
	Logger   infra.Logger
}

// Manager owns the video job lifecycle: admission, dispatch, polling,
// finalization and refunds.
type Manager struct {
	cfg      Config
	registry ProviderResolver
	jobs     domain.VideoJobRepository
	ledger   CreditLedger
	store    ArtifactStore
	images   ImageResolver
	notifier Notifier
	clock    Clock
	logger   infra.Logger

	queue chan string
	group *errgroup.Group
}

func NewManager(cfg Config, deps Deps) *Manager {
	cfg = cfg.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Manager{
		cfg:      cfg,
		registry: deps.Registry,
		jobs:     deps.Jobs,
		ledger:   deps.Ledger,
		store:    deps.Store,
		images:   deps.Images,
		notifier: deps.Notifier,
		clock:    clock,
		logger:   deps.Logger,
		queue:    make(chan string, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled; call Wait to block on their exit during shutdown.
func (m *Manager) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < m.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case jobID := <-m.queue:
					m.process(gctx, jobID)
				}
			}
		})
	}
	m.group = g
}

// Wait blocks until all workers have stopped.
func (m *Manager) Wait() error {
	if m.group == nil {
		return nil
	}
	return m.group.Wait()
}

// GenerateInput carries a user's generation request into admission.
type GenerateInput struct {
	Provider        string
	Prompt          string
	DurationSeconds int
	Width           int
	Height          int
	FPS             int
	ImageID         string
	Params          map[string]any
}

func (in GenerateInput) withDefaults() GenerateInput {
	if in.Provider == "" {
		in.Provider = "sora"
	}
	if in.DurationSeconds <= 0 {
		in.DurationSeconds = 5
	}
	if in.Width <= 0 {
		in.Width = 1920
	}
	if in.Height <= 0 {
		in.Height = 1080
	}
	if in.FPS <= 0 {
		in.FPS = 24
	}
	return in
}

// Generate admits a new job: validates against the provider, charges the
// user up front and persists the job before it is queued for dispatch. The
// debit is compensated if the job row cannot be created, so a failed
// admission never costs credits.
func (m *Manager) Generate(ctx context.Context, userID string, in GenerateInput) (*domain.VideoJob, error) {
	in = in.withDefaults()

	gen, err := m.registry.Resolve(in.Provider)
	if err != nil {
		return nil, err
	}

	imageURL := ""
	if in.ImageID != "" {
		imageURL, err = m.images.ResolveURL(ctx, userID, in.ImageID)
		if err != nil {
			return nil, err
		}
	}

	req := provider.Request{
		Prompt:          in.Prompt,
		DurationSeconds: in.DurationSeconds,
		Width:           in.Width,
		Height:          in.Height,
		FPS:             in.FPS,
		ImageURL:        imageURL,
		Params:          in.Params,
	}
	if err := gen.Validate(req); err != nil {
		return nil, err
	}

	cost := gen.EstimateCost(req)
	jobID := uuid.NewString()

	if _, err := m.ledger.Debit(ctx, userID, cost, fmt.Sprintf("Video generation (%s)", gen.Name()), jobID); err != nil {
		return nil, err
	}

	now := m.clock.Now().UTC()
	job := &domain.VideoJob{
		ID:              jobID,
		UserID:          userID,
		Provider:        gen.Name(),
		ImageID:         in.ImageID,
		Prompt:          in.Prompt,
		DurationSeconds: in.DurationSeconds,
		Width:           in.Width,
		Height:          in.Height,
		FPS:             in.FPS,
		ProviderParams:  in.Params,
		Status:          domain.JobStatusPending,
		CreditsCost:     cost,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		if _, rerr := m.ledger.Refund(ctx, userID, cost, "Refund: job creation failed", jobID); rerr != nil {
			m.logger.Error().Err(rerr).Str("job_id", jobID).Str("user_id", userID).
				Msg("compensating refund failed after job create error")
		}
		return nil, fmt.Errorf("create video job: %w", err)
	}

	select {
	case m.queue <- jobID:
	default:
		m.finalizeFailure(ctx, job, "Service is at capacity, please retry later")
		return nil, fmt.Errorf("enqueue video job: queue full")
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("user_id", userID).
		Str("provider", gen.Name()).
		Str("credits_cost", cost.String()).
		Msg("video job admitted")
	return job, nil
}

// Status returns a job owned by the user.
func (m *Manager) Status(ctx context.Context, userID, jobID string) (*domain.VideoJob, error) {
	return m.jobs.GetForUser(ctx, jobID, userID)
}

// List returns the user's jobs newest first, optionally filtered by status.
func (m *Manager) List(ctx context.Context, userID string, status *domain.JobStatus, limit, offset int) ([]domain.VideoJob, int, error) {
	return m.jobs.ListByUser(ctx, userID, status, limit, offset)
}

// ArtifactURL returns a short-lived download URL for a completed job's video.
func (m *Manager) ArtifactURL(ctx context.Context, job *domain.VideoJob, ttl time.Duration) (string, error) {
	if job.ArtifactKey == "" {
		return "", nil
	}
	return m.store.PresignedURL(ctx, job.ArtifactKey, ttl)
}

// Cancel stops a non-terminal job and refunds its cost. The transition to
// cancelled is claimed atomically so a job racing to completion keeps its
// terminal state and its charge.
func (m *Manager) Cancel(ctx context.Context, userID, jobID string) error {
	job, err := m.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrJobNotCancellable
	}

	cancelled, err := m.jobs.MarkCancelled(ctx, jobID)
	if err != nil {
		return fmt.Errorf("cancel video job: %w", err)
	}
	if !cancelled {
		return domain.ErrJobNotCancellable
	}

	if job.ProviderJobID != "" {
		if gen, rerr := m.registry.Resolve(job.Provider); rerr == nil {
			if !gen.Cancel(ctx, job.ProviderJobID) {
				m.logger.Warn().Str("job_id", jobID).Str("provider", job.Provider).
					Msg("provider did not acknowledge cancellation")
			}
		}
	}

	m.refund(ctx, job, "Refund: cancelled by user")
	m.notify(ctx, job, EventJobCancelled, domain.JobStatusCancelled, "")
	m.logger.Info().Str("job_id", jobID).Str("user_id", userID).Msg("video job cancelled")
	return nil
}

// Recover fails and refunds non-terminal jobs that stopped making progress
// before the last restart. Run once at startup, before Start.
func (m *Manager) Recover(ctx context.Context) error {
	cutoff := m.clock.Now().UTC().Add(-m.pollCeiling())
	stale, err := m.jobs.ListStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale jobs: %w", err)
	}
	for i := range stale {
		job := stale[i]
		m.finalizeFailure(ctx, &job, "Video generation interrupted by restart")
		m.logger.Warn().Str("job_id", job.ID).Str("user_id", job.UserID).
			Msg("recovered stale video job")
	}
	return nil
}

// pollCeiling is the longest a healthy job can sit between updates.
func (m *Manager) pollCeiling() time.Duration {
	return m.cfg.PollInterval*time.Duration(m.cfg.MaxPollAttempts) + m.cfg.PollInterval
}
