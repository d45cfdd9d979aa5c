package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/provider"
	"server/internal/provider/registry"
	"server/internal/videojob"
)

// VideoService is the slice of the job manager the HTTP layer uses.
type VideoService interface {
	Generate(ctx context.Context, userID string, in videojob.GenerateInput) (*domain.VideoJob, error)
	Status(ctx context.Context, userID, jobID string) (*domain.VideoJob, error)
	List(ctx context.Context, userID string, status *domain.JobStatus, limit, offset int) ([]domain.VideoJob, int, error)
	Cancel(ctx context.Context, userID, jobID string) error
	ArtifactURL(ctx context.Context, job *domain.VideoJob, ttl time.Duration) (string, error)
}

// ProviderCatalog lists providers and their advertised capabilities.
type ProviderCatalog interface {
	ListAvailable() []registry.Availability
}

// CreditService exposes the user's transaction history.
type CreditService interface {
	Transactions(ctx context.Context, userID string, limit, offset int) ([]domain.LedgerEntry, error)
}

type App struct {
	Videos         VideoService
	Providers      ProviderCatalog
	Credits        CreditService
	Users          domain.UserRepository
	Catalog        domain.ProviderRepository
	DB             *pgxpool.Pool
	Logger         infra.Logger
	ArtifactURLTTL time.Duration
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errCode, Message: message})
}

// writeServiceError maps domain and provider errors onto HTTP responses.
// Provider validation messages surface to the caller verbatim.
func (a *App) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "Not enough credits for this generation")
	case errors.Is(err, domain.ErrUnsupportedProvider):
		a.error(w, http.StatusBadRequest, "unsupported_provider", "Unknown video provider")
	case errors.Is(err, domain.ErrProviderUnavailable):
		a.error(w, http.StatusServiceUnavailable, "provider_unavailable", "Provider is not configured")
	case errors.Is(err, domain.ErrImageNotFound):
		a.error(w, http.StatusNotFound, "image_not_found", "Image not found")
	case errors.Is(err, domain.ErrJobNotCancellable):
		a.error(w, http.StatusConflict, "not_cancellable", "Job already reached a terminal state")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "Resource not found")
	case provider.IsInvalidRequest(err):
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case provider.IsQuotaExceeded(err):
		a.error(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "Internal server error")
	}
}
