// Package main is the entrypoint for the VoiceScript collector API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/cache"
	"github.com/voicescript/collector/internal/config"
	"github.com/voicescript/collector/internal/events"
	"github.com/voicescript/collector/internal/logging"
	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/repository"
	"github.com/voicescript/collector/internal/server"
	"github.com/voicescript/collector/internal/service"
	"github.com/voicescript/collector/internal/storage"
	"github.com/voicescript/collector/internal/webhook"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer logCloser.Close()
	slog.SetDefault(logger)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", logging.SanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", logging.RedactURL(cfg.DatabaseURL)),
		)
		return errors.New("database unavailable")
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to Redis",
			slog.String("error", logging.SanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", logging.RedactURL(cfg.RedisURL)),
		)
		return errors.New("redis unavailable")
	}
	logger.Info("connected to Redis")

	audio, err := storage.NewAudioStore(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("open upload dir: %w", err)
	}

	recorder := metrics.NewInMemory()
	publisher := events.NewPublisher(cacheClient.Client(), logger, recorder)
	hub := events.NewHub(logger, recorder)

	// The webhook store speaks database/sql; share the pgx pool through it.
	webhookDB := stdlib.OpenDBFromPool(repo.Pool())
	webhookRepo := webhook.NewRepository(webhookDB)
	urlPolicy := webhook.URLPolicy{AllowInsecure: cfg.IsDevelopment()}

	signer := auth.NewSigner(cfg.SecretKey)
	var google *auth.GoogleClient
	if cfg.GoogleOAuthEnabled() {
		google = auth.NewGoogleClient(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	}

	svc := services{
		auth: service.NewAuthService(repo, cacheClient, signer, google, service.AuthConfig{
			SessionTTL:      cfg.SessionTTL,
			Production:      cfg.IsProduction(),
			FallbackEnabled: cfg.WebviewFallbackEnabled(),
		}, recorder, logger),
		users:        service.NewUserService(repo, cacheClient, logger),
		languages:    service.NewLanguageService(repo, cacheClient, logger),
		scripts:      service.NewScriptService(repo, audio, recorder, logger),
		requirements: service.NewRequirementService(repo),
		submissions:  service.NewSubmissionService(repo, audio, publisher, recorder, logger),
		reviews:      service.NewReviewService(repo, publisher, recorder, logger),
		earnings:     service.NewEarningsService(repo, cacheClient, logger),
		dashboards:   service.NewDashboardService(repo),
		export:       service.NewExportService(repo, logger),
		webhooks:     webhook.NewEndpointService(webhookRepo, urlPolicy, logger),
	}

	r := setupRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		cache:    cacheClient,
		signer:   signer,
		hub:      hub,
		recorder: recorder,
		services: svc,
	})

	srv := server.New(r, cfg.AppPort, cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout, logger)

	// Components registered first are closed last.
	srv.OnShutdown("redis", func(ctx context.Context) error { return cacheClient.Close() })
	srv.OnShutdown("webhook-db", func(ctx context.Context) error { return webhookDB.Close() })

	srv.Go("websocket-hub", hub.Run)
	if cfg.EventsWorkerEnabled {
		worker := events.NewWorker(cacheClient.Client(), logger, events.NewConsumerID(), recorder,
			hub, webhook.NewPublisher(webhookRepo, logger))
		srv.Go("event-worker", worker.Run)
		srv.OnShutdown("event-worker", worker.Shutdown)
	}
	if cfg.WebhookWorkerEnabled {
		srv.Go("webhook-worker", webhook.NewWorker(webhookRepo, logger, recorder).Run)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"google_oauth", cfg.GoogleOAuthEnabled(),
		"webview_fallback", cfg.WebviewFallbackEnabled(),
		"events_worker", cfg.EventsWorkerEnabled,
		"webhook_worker", cfg.WebhookWorkerEnabled,
	)

	start := time.Now()
	err = srv.Run(ctx)
	logger.Info("server stopped", "uptime", time.Since(start).Round(time.Second).String())
	return err
}
