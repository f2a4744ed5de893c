package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/cache"
	"github.com/voicescript/collector/internal/config"
	"github.com/voicescript/collector/internal/events"
	"github.com/voicescript/collector/internal/handler"
	"github.com/voicescript/collector/internal/metrics"
	"github.com/voicescript/collector/internal/middleware"
	"github.com/voicescript/collector/internal/repository"
	"github.com/voicescript/collector/internal/service"
	"github.com/voicescript/collector/internal/webhook"
)

type services struct {
	auth         *service.AuthService
	users        *service.UserService
	languages    *service.LanguageService
	scripts      *service.ScriptService
	requirements *service.RequirementService
	submissions  *service.SubmissionService
	reviews      *service.ReviewService
	earnings     *service.EarningsService
	dashboards   *service.DashboardService
	export       *service.ExportService
	webhooks     *webhook.EndpointService
}

type routerDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *repository.Repository
	cache    *cache.Cache
	signer   *auth.Signer
	hub      *events.Hub
	recorder *metrics.InMemoryRecorder
	services services
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	cfg, logger, svc := d.cfg, d.logger, d.services

	healthHandler := handler.NewHealthHandler(d.repo, d.cache)
	metricsHandler := handler.NewMetricsHandler(d.recorder)
	authHandler := handler.NewAuthHandler(svc.auth, svc.users, handler.CookieConfig{Secure: cfg.SecureCookies()}, logger)
	userHandler := handler.NewUserHandler(svc.users, logger)
	languageHandler := handler.NewLanguageHandler(svc.languages, logger)
	scriptHandler := handler.NewScriptHandler(svc.scripts, svc.requirements, svc.submissions, logger)
	submissionHandler := handler.NewSubmissionHandler(svc.submissions, svc.reviews, svc.requirements, svc.export, cfg.MaxUploadBytes, logger)
	dashboardHandler := handler.NewDashboardHandler(svc.dashboards, svc.earnings, logger)
	webhookHandler := handler.NewWebhookHandler(svc.webhooks, logger)
	feedHandler := handler.NewReviewFeedHandler(d.hub, middleware.OriginChecker(cfg.GetCORSAllowedOrigins()), logger)

	sessionCfg := middleware.SessionConfig{
		Logger:          logger,
		Cache:           d.cache,
		Signer:          d.signer,
		FallbackEnabled: cfg.WebviewFallbackEnabled(),
	}
	if d.repo != nil {
		sessionCfg.Users = d.repo
	}
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:           logger,
		Cache:            d.cache,
		LoginPerMinute:   cfg.RateLimitLoginPerMinute,
		UploadsPerMinute: cfg.RateLimitUploadsPerMinute,
	}
	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()
	securityCfg.MaxRequestBodySize = cfg.MaxRequestBodySize
	jsonBody := jsonBodyMiddleware(securityCfg.MaxRequestBodySize)
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.CORS(corsCfg))

	// Probes
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Database)
		r.Get("/languages", languageHandler.ListActive)

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimitLogin(rateLimitCfg)).With(jsonBody...).Post("/login", authHandler.Login)
			r.Post("/demo", authHandler.Demo)
			r.Post("/webview", authHandler.Webview)
			r.With(middleware.OptionalSession(sessionCfg)).Post("/logout", authHandler.Logout)
			r.Get("/google", authHandler.Google)
			r.Get("/google/callback", authHandler.GoogleCallback)
			r.With(middleware.Session(sessionCfg)).Get("/me", authHandler.Me)
		})

		// Everything below needs a session.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(sessionCfg))

			r.Get("/dashboard", dashboardHandler.Dashboard)
			r.Get("/earnings", dashboardHandler.Earnings)
			r.Get("/pricing/{language}", languageHandler.Pricing)
			r.With(jsonBody...).Put("/profile", userHandler.Profile)

			r.Get("/scripts", scriptHandler.Search)
			r.Get("/scripts/{id}", scriptHandler.GetActive)
			r.Get("/scripts/{id}/my-submissions", scriptHandler.MySubmissions)

			r.Get("/recording/next", submissionHandler.NextTask)
			r.With(
				middleware.RequireProvider(),
				middleware.RateLimitUploads(rateLimitCfg),
			).Post("/submissions", submissionHandler.Submit)
			r.Delete("/submissions/{id}", submissionHandler.DeleteOwn)
			r.With(jsonBody...).Put("/submissions/{id}/transcript", submissionHandler.Transcript)
			r.Get("/submissions/{id}/audio", submissionHandler.Audio)

			// Reviewer routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireReviewer())
				r.Get("/reviews/pending", submissionHandler.Pending)
				r.With(jsonBody...).Post("/submissions/{id}/review", submissionHandler.Review)
				r.Get("/scripts/{id}/progress", scriptHandler.Progress)
				r.Get("/ws/reviews", feedHandler.Serve)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())

				r.Route("/scripts", func(r chi.Router) {
					r.Get("/", scriptHandler.List)
					r.With(jsonBody...).Post("/", scriptHandler.Create)
					r.With(jsonBody...).Post("/bulk-delete", scriptHandler.BulkDelete)
					r.Post("/bulk-upload", scriptHandler.BulkUpload)
					r.With(jsonBody...).Post("/bulk-text", scriptHandler.BulkText)
					r.Get("/{id}", scriptHandler.Get)
					r.With(jsonBody...).Put("/{id}", scriptHandler.Update)
					r.Delete("/{id}", scriptHandler.Delete)
					r.Get("/{id}/submissions", scriptHandler.Submissions)
					r.Get("/{id}/requirements", scriptHandler.Requirements)
					r.With(jsonBody...).Post("/{id}/requirements", scriptHandler.ReplaceRequirements)
				})

				r.With(middleware.RateLimitUploads(rateLimitCfg)).Post("/field-collection", submissionHandler.FieldCollect)
				r.Delete("/submissions/{id}", submissionHandler.AdminDelete)
				r.Get("/export", submissionHandler.Export)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", userHandler.List)
					r.With(jsonBody...).Post("/", userHandler.Create)
					r.Get("/stats", userHandler.Stats)
					r.With(jsonBody...).Put("/{id}", userHandler.Update)
					r.Delete("/{id}", userHandler.Delete)
					r.With(jsonBody...).Put("/{id}/role", userHandler.UpdateRole)
				})

				r.Route("/languages", func(r chi.Router) {
					r.Get("/", languageHandler.ListAll)
					r.With(jsonBody...).Post("/", languageHandler.Create)
					r.Get("/{code}", languageHandler.Get)
					r.With(jsonBody...).Put("/{code}", languageHandler.Update)
				})
				r.With(jsonBody...).Put("/pricing/{language}", languageHandler.UpdatePricing)

				r.Get("/settings/earnings", dashboardHandler.GetEarningsSetting)
				r.With(jsonBody...).Put("/settings/earnings", dashboardHandler.SetEarningsSetting)

				r.Route("/webhooks", func(r chi.Router) {
					r.Get("/", webhookHandler.List)
					r.With(jsonBody...).Post("/", webhookHandler.Create)
					r.Delete("/{id}", webhookHandler.Delete)
				})
			})
		})
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

// jsonBodyMiddleware bounds and type-checks JSON request bodies.
func jsonBodyMiddleware(limit int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.MaxBodySize(limit),
		middleware.RequireJSON(),
	}
}
