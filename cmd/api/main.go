package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/credit"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/imagestore"
	"server/internal/infra"
	"server/internal/notify"
	"server/internal/provider/registry"
	"server/internal/storage"
	"server/internal/videojob"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	users := repo.NewUserRepository(dbpool)
	jobs := repo.NewVideoJobRepository(dbpool)
	images := repo.NewImageRepository(dbpool)
	ledgerStore := repo.NewLedgerRepository(dbpool)
	catalog := repo.NewProviderRepository(dbpool)

	store, err := newArtifactStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize artifact storage")
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	providers := registry.New(registry.Config{
		HTTPClient: httpClient,
		Logger:     &logger,
		Sora:       registry.Credential{APIKey: cfg.SoraAPIKey, BaseURL: cfg.SoraBaseURL},
		Veo:        registry.Credential{APIKey: cfg.VeoAPIKey, BaseURL: cfg.VeoBaseURL},
		Wan:        registry.Credential{APIKey: cfg.WanAPIKey, BaseURL: cfg.WanBaseURL},
	})

	ledger := credit.NewLedger(ledgerStore, logger)
	resolver := imagestore.NewResolver(images, store, time.Hour)
	notifier := notify.NewWebhook(cfg.WebhookURL, httpClient, logger)

	manager := videojob.NewManager(videojob.Config{
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
		Workers:         cfg.WorkerCount,
		QueueSize:       cfg.QueueSize,
	}, videojob.Deps{
		Registry: providers,
		Jobs:     jobs,
		Ledger:   ledger,
		Store:    store,
		Images:   resolver,
		Notifier: notifier,
		Clock:    videojob.RealClock(),
		Logger:   logger,
	})

	// Fail and refund jobs orphaned by the previous run before accepting
	// new work.
	if err := manager.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("startup recovery failed")
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	manager.Start(workerCtx)

	app := &handlers.App{
		Videos:         manager,
		Providers:      providers,
		Credits:        ledger,
		Users:          users,
		Catalog:        catalog,
		DB:             dbpool,
		Logger:         logger,
		ArtifactURLTTL: cfg.ArtifactURLTTL,
	}
	router := httpapi.NewRouter(app, logger, cfg.RateLimitPerMin, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	stopWorkers()
	if err := manager.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker pool exited with error")
	}
	logger.Info().Msg("server stopped")
}

// newArtifactStore picks the storage backend from configuration: an
// S3-compatible bucket in production, the local filesystem for development.
func newArtifactStore(ctx context.Context, cfg *infra.Config) (videojob.ArtifactStore, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	}
	return storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
}
