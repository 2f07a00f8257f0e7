package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DukeRupert/cairn/internal"
	"github.com/DukeRupert/cairn/internal/ai"
	"github.com/DukeRupert/cairn/internal/ai/anthropic"
	"github.com/DukeRupert/cairn/internal/ai/mock"
	"github.com/DukeRupert/cairn/internal/ai/openai"
	"github.com/DukeRupert/cairn/internal/auth"
	"github.com/DukeRupert/cairn/internal/billing"
	"github.com/DukeRupert/cairn/internal/cache"
	"github.com/DukeRupert/cairn/internal/domain"
	"github.com/DukeRupert/cairn/internal/handler"
	"github.com/DukeRupert/cairn/internal/metrics"
	"github.com/DukeRupert/cairn/internal/middleware"
	"github.com/DukeRupert/cairn/internal/rates"
	"github.com/DukeRupert/cairn/internal/service"
	"github.com/DukeRupert/cairn/internal/storage"
	"github.com/DukeRupert/cairn/internal/store"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx := context.Background()

	issueToken := flag.String("issue-token", "", "print a bearer token for the given user ID and exit")
	flag.Parse()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("token manager initialization failed: %w", err)
	}

	if *issueToken != "" {
		return printToken(os.Stdout, tokens, *issueToken)
	}

	// Initialize persistence
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Initialize cache
	rateCache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	// Initialize storage
	objects, err := storage.New(storage.Config{
		Provider: cfg.StorageProvider,
		Local: storage.LocalConfig{
			BasePath:   cfg.LocalStoragePath,
			BaseURL:    cfg.LocalStorageURL,
			SigningKey: []byte(cfg.LocalSigningKey),
		},
		Object: storage.ObjectConfig{
			Endpoint:        cfg.ObjectEndpoint,
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.ObjectAccessKeyID,
			SecretAccessKey: cfg.ObjectSecretKey,
			Bucket:          cfg.ObjectBucket,
			Region:          cfg.ObjectRegion,
			PathStyle:       cfg.ObjectPathStyle,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// Initialize AI provider
	provider, err := newChatProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("ai provider initialization failed: %w", err)
	}
	logger.Info("AI provider ready", "provider", cfg.AIProvider)

	billingService := billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
		PlusPriceID: cfg.StripePlusPriceID,
		ProPriceID:  cfg.StripeProPriceID,
	})

	// Initialize services
	loc := cfg.Location()
	converter := rates.NewConverter(rates.NewHTTPFeed(cfg.RatesFeedURL, cfg.RatesTimeout), rateCache, cfg.RatesTTL, logger)

	subscriptionService := service.NewSubscriptionService(st, logger)
	if err := subscriptionService.SeedPlans(ctx); err != nil {
		return fmt.Errorf("plan seeding failed: %w", err)
	}
	quotaService := service.NewQuotaService(st, subscriptionService, logger)
	milestoneService := service.NewMilestoneService(st, logger)
	notificationService := service.NewNotificationService(st, loc, logger)
	streakService := service.NewStreakService(st, notificationService, loc, logger)
	goalService := service.NewGoalService(st, milestoneService, notificationService, logger)
	transactionService := service.NewTransactionService(st, converter, goalService, streakService, notificationService, logger)
	chatService := service.NewChatService(st, provider, subscriptionService, quotaService, logger)
	healthService := service.NewHealthService(st, subscriptionService, quotaService, logger)
	groupService := service.NewGroupService(st, cfg.InviteTTL, logger)
	exportService := service.NewExportService(st, objects, cfg.ExportURLTTL, logger)

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(tokens, logger)
	limiter := middleware.NewAPIRateLimiter(middleware.APIRateLimits{
		RequestsPerMinute:   cfg.RateLimitPerMinute,
		AIRequestsPerMinute: cfg.AIRateLimitPerMinute,
	}, logger)
	defer limiter.Stop()
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)
	if !metricsAuth.Enabled() {
		logger.Warn("Metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}

	requireUser := middleware.Stack(authMw.RequireUser, limiter.Limit)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	if local, ok := objects.(*storage.Local); ok {
		prefix := cfg.FilesPath()
		mux.Handle("GET "+prefix, http.StripPrefix(strings.TrimSuffix(prefix, "/"), local.Handler()))
	}

	handler.NewHealthHandler(st, logger).RegisterRoutes(mux)
	handler.NewWebhookHandler(billingService, subscriptionService, quotaService, logger).RegisterRoutes(mux)
	handler.NewSubscriptionHandler(subscriptionService, quotaService, billingService, cfg.BaseURL, logger).RegisterRoutes(mux, requireUser)
	handler.NewGoalHandler(goalService, milestoneService, logger).RegisterRoutes(mux, requireUser)
	handler.NewTransactionHandler(transactionService, logger).RegisterRoutes(mux, requireUser)
	handler.NewStreakHandler(streakService, logger).RegisterRoutes(mux, requireUser)
	handler.NewNotificationHandler(notificationService, logger).RegisterRoutes(mux, requireUser)
	handler.NewChatHandler(chatService, healthService, logger).WithAILimit(limiter.LimitAI).RegisterRoutes(mux, requireUser)
	handler.NewGroupHandler(groupService, logger).RegisterRoutes(mux, requireUser)
	handler.NewExportHandler(exportService, logger).RegisterRoutes(mux, requireUser)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	root := middleware.Stack(
		middleware.NewSecurityHeadersMiddleware(cfg.IsSecure()).Handler,
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		metrics.Middleware,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		// Model calls can take most of a minute.
		WriteTimeout: cfg.AIRequestTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// openStore connects the configured store. Postgres is migrated before use.
func openStore(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	return store.NewPostgres(db), func() { db.Close() }, nil
}

// openCache returns the rate cache. Redis lets several instances share rates.
func openCache(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (cache.Cache, func(), error) {
	if cfg.CacheDriver != "redis" {
		return cache.NewMemory(), func() {}, nil
	}

	rdb, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("cache initialization failed: %w", err)
	}
	logger.Info("Redis cache ready", "addr", cfg.RedisAddr)

	return rdb, func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}, nil
}

func newChatProvider(cfg *internal.Config, logger *slog.Logger) (ai.ChatProvider, error) {
	providerConfig := ai.ProviderConfig{
		MaxRetries:     cfg.AIMaxRetries,
		RetryBaseDelay: cfg.AIRetryBaseDelay,
		RequestTimeout: cfg.AIRequestTimeout,
	}

	models := map[domain.ModelTier]string{}
	for tier, model := range map[domain.ModelTier]string{
		domain.ModelTierBasic:    cfg.AIModelBasic,
		domain.ModelTierAdvanced: cfg.AIModelAdvanced,
		domain.ModelTierPremium:  cfg.AIModelPremium,
	} {
		if model != "" {
			models[tier] = model
		}
	}

	switch cfg.AIProvider {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:         cfg.AnthropicAPIKey,
			Models:         models,
			ProviderConfig: providerConfig,
		}, logger)
	case "openai":
		return openai.New(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Models:         models,
			ProviderConfig: providerConfig,
		}, logger)
	default:
		return mock.New(logger), nil
	}
}

// printToken writes a bearer token for userID. Used to exercise the API locally.
func printToken(w io.Writer, tokens *auth.TokenManager, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid user ID %q: %w", userID, err)
	}

	token, expires, err := tokens.Issue(id)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	_, err = fmt.Fprintf(w, "%s\n# expires %s\n", token, expires.Format(time.RFC3339))
	return err
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
