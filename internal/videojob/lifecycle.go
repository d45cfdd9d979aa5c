package videojob

import (
	"context"
	"errors"
	"fmt"

	"server/internal/domain"
	"server/internal/provider"
)

// process runs a queued job to a terminal state: dispatch to the provider,
// poll until done, then finalize. Any path that ends in failure refunds the
// user's charge exactly once.
func (m *Manager) process(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("job_id", jobID).Interface("panic", r).
				Msg("video job worker panicked")
			if job, err := m.jobs.GetByID(context.Background(), jobID); err == nil && !job.Status.Terminal() {
				m.finalizeFailure(context.Background(), job, "Internal error during video generation")
			}
		}
	}()

	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", jobID).Msg("load queued job")
		return
	}
	if job.Status != domain.JobStatusPending {
		// Cancelled (and refunded) before a worker picked it up.
		return
	}

	gen, err := m.registry.Resolve(job.Provider)
	if err != nil {
		m.finalizeFailure(ctx, job, fmt.Sprintf("Provider %s is unavailable", job.Provider))
		return
	}

	req, err := m.providerRequest(ctx, job)
	if err != nil {
		m.finalizeFailure(ctx, job, providerMessage(err))
		return
	}

	sub, err := gen.Submit(ctx, req)
	if err != nil {
		m.finalizeFailure(ctx, job, providerMessage(err))
		return
	}

	if err := m.jobs.MarkProcessing(ctx, job.ID, sub.ExternalID, m.clock.Now().UTC()); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("mark job processing")
		m.finalizeFailure(ctx, job, "Internal error during video generation")
		return
	}
	job.Status = domain.JobStatusProcessing
	job.ProviderJobID = sub.ExternalID

	m.logger.Info().
		Str("job_id", job.ID).
		Str("provider", job.Provider).
		Str("provider_job_id", sub.ExternalID).
		Msg("video job dispatched")

	m.poll(ctx, job, gen)
}

// poll drives the job through the provider's async state machine. Progress
// only ever moves forward; a shutdown mid-poll leaves the job processing for
// Recover to pick up after restart.
func (m *Manager) poll(ctx context.Context, job *domain.VideoJob, gen provider.Generator) {
	progress := job.Progress
	for attempt := 0; attempt < m.cfg.MaxPollAttempts; attempt++ {
		if err := m.clock.Sleep(ctx, m.cfg.PollInterval); err != nil {
			return
		}

		fresh, err := m.jobs.GetByID(ctx, job.ID)
		if err != nil {
			m.logger.Error().Err(err).Str("job_id", job.ID).Msg("reload job during poll")
			continue
		}
		if fresh.Status != domain.JobStatusProcessing {
			// Cancelled out of band; that path handled the refund.
			return
		}

		st, err := gen.Poll(ctx, job.ProviderJobID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.finalizeFailure(ctx, job, providerMessage(err))
			return
		}

		if st.Progress > progress {
			progress = st.Progress
			if uerr := m.jobs.UpdateProgress(ctx, job.ID, progress); uerr != nil {
				m.logger.Error().Err(uerr).Str("job_id", job.ID).Msg("update job progress")
			}
		}

		switch st.State {
		case provider.StateCompleted:
			m.finalizeSuccess(ctx, job, gen)
			return
		case provider.StateFailed:
			msg := st.ErrorMessage
			if msg == "" {
				msg = "Video generation failed"
			}
			m.finalizeFailure(ctx, job, msg)
			return
		}
	}
	m.finalizeFailure(ctx, job, "Video generation timed out")
}

// finalizeSuccess downloads the provider's output, stores it and marks the
// job completed. A completion with no retrievable bytes is treated as a
// failure so the user is not charged for nothing.
func (m *Manager) finalizeSuccess(ctx context.Context, job *domain.VideoJob, gen provider.Generator) {
	data, err := gen.FetchArtifact(ctx, job.ProviderJobID)
	if err != nil {
		m.finalizeFailure(ctx, job, "Failed to download generated video: "+providerMessage(err))
		return
	}
	if len(data) == 0 {
		m.finalizeFailure(ctx, job, "Video generation completed without retrievable output")
		return
	}

	key := fmt.Sprintf("videos/%s/%s/generated.mp4", job.UserID, job.ID)
	meta := map[string]string{
		"provider": job.Provider,
		"job_id":   job.ID,
	}
	if err := m.store.Put(ctx, key, data, "video/mp4", meta); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Str("key", key).
			Msg("store generated video")
		m.finalizeFailure(ctx, job, "Failed to store generated video")
		return
	}

	completedAt := m.clock.Now().UTC()
	if err := m.jobs.MarkCompleted(ctx, job.ID, key, int64(len(data)), float64(job.DurationSeconds), completedAt); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("mark job completed")
		m.finalizeFailure(ctx, job, "Internal error recording completion")
		return
	}
	job.Status = domain.JobStatusCompleted
	job.ArtifactKey = key

	m.notify(ctx, job, EventJobCompleted, domain.JobStatusCompleted, "")
	m.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("provider", job.Provider).
		Int("size_bytes", len(data)).
		Msg("video job completed")
}

// finalizeFailure moves the job to failed and refunds the charge. The
// refund claim is conditional on the job row, so calling this twice for the
// same job credits the user once.
func (m *Manager) finalizeFailure(ctx context.Context, job *domain.VideoJob, msg string) {
	if err := m.jobs.MarkFailed(ctx, job.ID, msg); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("mark job failed")
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = msg

	m.refund(ctx, job, "Refund: "+msg)
	m.notify(ctx, job, EventJobFailed, domain.JobStatusFailed, msg)
	m.logger.Warn().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("provider", job.Provider).
		Str("reason", msg).
		Msg("video job failed")
}

// refund credits the job's cost back at most once, gated by a conditional
// claim on the job row.
func (m *Manager) refund(ctx context.Context, job *domain.VideoJob, description string) {
	if job.CreditsCost <= 0 {
		return
	}
	claimed, err := m.jobs.ClaimRefund(ctx, job.ID)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("claim refund")
		return
	}
	if !claimed {
		return
	}
	if _, err := m.ledger.Refund(ctx, job.UserID, job.CreditsCost, description, job.ID); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Str("user_id", job.UserID).
			Str("amount", job.CreditsCost.String()).
			Msg("refund failed after claim")
	}
}

// providerRequest rebuilds the provider request from the stored job,
// re-resolving the image URL so it is fresh at dispatch time.
func (m *Manager) providerRequest(ctx context.Context, job *domain.VideoJob) (provider.Request, error) {
	req := provider.Request{
		Prompt:          job.Prompt,
		DurationSeconds: job.DurationSeconds,
		Width:           job.Width,
		Height:          job.Height,
		FPS:             job.FPS,
		Params:          job.ProviderParams,
	}
	if job.ImageID != "" {
		url, err := m.images.ResolveURL(ctx, job.UserID, job.ImageID)
		if err != nil {
			return provider.Request{}, err
		}
		req.ImageURL = url
	}
	return req, nil
}

func (m *Manager) notify(ctx context.Context, job *domain.VideoJob, event string, status domain.JobStatus, errMsg string) {
	if m.notifier == nil {
		return
	}
	m.notifier.JobEvent(ctx, JobEvent{
		Event:        event,
		JobID:        job.ID,
		UserID:       job.UserID,
		Provider:     job.Provider,
		Status:       status,
		ArtifactKey:  job.ArtifactKey,
		ErrorMessage: errMsg,
		OccurredAt:   m.clock.Now().UTC(),
	})
}

// providerMessage renders a provider error for the job record. Typed
// provider errors already carry the provider tag and a user-safe message.
func providerMessage(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Error()
	}
	return err.Error()
}
