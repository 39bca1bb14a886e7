// Babbelbox - abuse-protected chat widget backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/mverkuijl/babbelbox/internal/abuse"
	"github.com/mverkuijl/babbelbox/internal/api"
	"github.com/mverkuijl/babbelbox/internal/captcha"
	"github.com/mverkuijl/babbelbox/internal/chat"
	"github.com/mverkuijl/babbelbox/internal/config"
	"github.com/mverkuijl/babbelbox/internal/domain"
	"github.com/mverkuijl/babbelbox/internal/gdpr"
	"github.com/mverkuijl/babbelbox/internal/handover"
	"github.com/mverkuijl/babbelbox/internal/knowledge"
	"github.com/mverkuijl/babbelbox/internal/metrics"
	"github.com/mverkuijl/babbelbox/internal/middleware"
	"github.com/mverkuijl/babbelbox/internal/persona"
	"github.com/mverkuijl/babbelbox/internal/ratelimit"
	"github.com/mverkuijl/babbelbox/internal/store"
	"github.com/mverkuijl/babbelbox/internal/waf"
	"github.com/mverkuijl/babbelbox/web"
)

const version = "0.3.0"

// demoTenantID is seeded on startup so a fresh install has a working widget.
const demoTenantID = "demo"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if err := seedDemoTenant(context.Background(), repo); err != nil {
		slog.Error("Failed to seed demo tenant", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	m := metrics.New()

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstLimit:        cfg.RateLimit.BurstLimit,
		ExemptPaths:       []string{"/health", "/api/health", "/metrics", "/widget.js"},
	})
	wafService := waf.NewService()
	captchaService := captcha.NewService(cfg.Captcha.TTL)

	kb := knowledge.NewDemoBase(demoTenantID)
	var generator persona.Generator = persona.NewTemplateGenerator(kb)
	if cfg.OpenAI.APIKey != "" {
		generator = persona.NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		slog.Info("Using OpenAI reply generator", "model", cfg.OpenAI.Model)
	} else {
		slog.Info("Using template reply generator (OPENAI_API_KEY not set)")
	}

	var mailer handover.Mailer
	if cfg.Handover.MailEndpoint != "" {
		mailer = handover.NewHTTPMailer(cfg.Handover.MailEndpoint, cfg.Handover.MailAPIKey, cfg.Handover.MailFrom)
		slog.Info("Handover mail dispatch enabled", "endpoint", cfg.Handover.MailEndpoint)
	} else {
		mailer = handover.LogMailer{}
	}
	handoverService := handover.NewService(repo, mailer, cfg.Handover.TokenTTL)

	// Initialize handlers.
	chatHandler := chat.NewHandler(limiter, wafService, generator, repo, m, chat.Config{
		TokenDelay:  cfg.Stream.TokenDelay,
		TypingDelay: cfg.Stream.TypingDelay,
	})
	abuseHandler := abuse.NewHandler(wafService, captchaService, m)
	gdprHandler := gdpr.NewHandler(repo)
	handoverHandler := handover.NewHandler(handoverService)
	healthHandler := api.NewHealthHandler(repo, version)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(middleware.CORS(origins))

	// Public routes.
	r.Get("/widget.js", web.WidgetHandler())
	r.Handle("/metrics", m.Handler())
	healthHandler.RegisterRoutes(r)

	// Tenant-scoped routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Tenant())
		chatHandler.RegisterRoutes(r)
		abuseHandler.RegisterRoutes(r)
		gdprHandler.RegisterRoutes(r)
		handoverHandler.RegisterRoutes(r)
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	// Start background sweepers.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter.StartSweeper(ctx, cfg.RateLimit.SweepInterval)
	captchaService.StartSweeper(ctx, cfg.Captcha.SweepInterval)
	slog.Info("Background sweepers started",
		"ratelimit_interval", cfg.RateLimit.SweepInterval,
		"captcha_interval", cfg.Captcha.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// seedDemoTenant makes sure the demo tenant exists without clobbering edits
// made to it since the first boot.
func seedDemoTenant(ctx context.Context, repo store.Repository) error {
	if _, err := repo.GetTenant(ctx, demoTenantID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	tenant := &domain.Tenant{
		ID:      demoTenantID,
		Name:    "Babbelbox Demo",
		Persona: domain.DefaultPersona(),
	}
	if err := repo.UpsertTenant(ctx, tenant); err != nil {
		return err
	}
	slog.Info("Demo tenant seeded", "tenant_id", demoTenantID)
	return nil
}
