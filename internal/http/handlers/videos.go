package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/videojob"
)

type generateRequest struct {
	Provider        string         `json:"provider"`
	Prompt          string         `json:"prompt"`
	DurationSeconds int            `json:"duration_seconds"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	FPS             int            `json:"fps"`
	ImageID         string         `json:"image_id"`
	Params          map[string]any `json:"provider_params"`
}

type jobView struct {
	VideoID         string     `json:"video_id"`
	Provider        string     `json:"provider"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	Prompt          string     `json:"prompt"`
	DurationSeconds int        `json:"duration_seconds"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	FPS             int        `json:"fps"`
	CreditsCost     float64    `json:"credits_cost"`
	CreditsRefunded float64    `json:"credits_refunded"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	VideoURL        string     `json:"video_url,omitempty"`
	FileSize        int64      `json:"file_size,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func viewOf(job *domain.VideoJob) jobView {
	return jobView{
		VideoID:         job.ID,
		Provider:        job.Provider,
		Status:          string(job.Status),
		Progress:        job.Progress,
		Prompt:          job.Prompt,
		DurationSeconds: job.DurationSeconds,
		Width:           job.Width,
		Height:          job.Height,
		FPS:             job.FPS,
		CreditsCost:     job.CreditsCost.Float(),
		CreditsRefunded: job.CreditsRefunded.Float(),
		ErrorMessage:    job.ErrorMessage,
		FileSize:        job.FileSize,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
}

type generateResponse struct {
	jobView
	EstimatedCompletionSeconds int `json:"estimated_completion_seconds"`
}

// VideosGenerate admits a new generation job and returns 202 with the
// pending job.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	job, err := a.Videos.Generate(r.Context(), userID, videojob.GenerateInput{
		Provider:        req.Provider,
		Prompt:          req.Prompt,
		DurationSeconds: req.DurationSeconds,
		Width:           req.Width,
		Height:          req.Height,
		FPS:             req.FPS,
		ImageID:         req.ImageID,
		Params:          req.Params,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	a.json(w, http.StatusAccepted, generateResponse{
		jobView:                    viewOf(job),
		EstimatedCompletionSeconds: job.DurationSeconds * 30,
	})
}

// VideoStatus returns a single job with a download URL once completed.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "video_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "video_id required")
		return
	}

	job, err := a.Videos.Status(r.Context(), userID, jobID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	view := viewOf(job)
	if job.Status == domain.JobStatusCompleted && job.ArtifactKey != "" {
		url, uerr := a.Videos.ArtifactURL(r.Context(), job, a.ArtifactURLTTL)
		if uerr != nil {
			a.Logger.Error().Err(uerr).Str("job_id", job.ID).Msg("presign artifact url")
		} else {
			view.VideoURL = url
		}
	}
	a.json(w, http.StatusOK, view)
}

// VideosList returns the user's jobs newest first, optionally filtered by
// status.
func (a *App) VideosList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var status *domain.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, ok := domain.ParseJobStatus(s)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown status filter")
			return
		}
		status = &parsed
	}
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := a.Videos.List(r.Context(), userID, status, limit, offset)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	items := make([]jobView, 0, len(jobs))
	for i := range jobs {
		items = append(items, viewOf(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// VideoCancel stops a non-terminal job and refunds its cost.
func (a *App) VideoCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "video_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "video_id required")
		return
	}

	if err := a.Videos.Cancel(r.Context(), userID, jobID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"video_id": jobID,
		"status":   string(domain.JobStatusCancelled),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
