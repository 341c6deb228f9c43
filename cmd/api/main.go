// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/admin"
	"github.com/carterperez-dev/legalquota/internal/anonymous"
	"github.com/carterperez-dev/legalquota/internal/audit"
	"github.com/carterperez-dev/legalquota/internal/auth"
	"github.com/carterperez-dev/legalquota/internal/billing"
	"github.com/carterperez-dev/legalquota/internal/config"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
	"github.com/carterperez-dev/legalquota/internal/gate"
	"github.com/carterperez-dev/legalquota/internal/health"
	"github.com/carterperez-dev/legalquota/internal/lifecycle"
	"github.com/carterperez-dev/legalquota/internal/metrics"
	"github.com/carterperez-dev/legalquota/internal/middleware"
	"github.com/carterperez-dev/legalquota/internal/notification"
	"github.com/carterperez-dev/legalquota/internal/outbox"
	"github.com/carterperez-dev/legalquota/internal/quota"
	"github.com/carterperez-dev/legalquota/internal/server"
)

const (
	drainDelay = 5 * time.Second
)

var gatedActions = []gate.Action{
	gate.ActionChat,
	gate.ActionDocumentAnalysis,
	gate.ActionContractAnalysis,
	gate.ActionTemplateGeneration,
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	//nolint:errcheck // .env is optional
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	telemetry, err := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		telemetry = &core.Telemetry{}
	}
	if telemetry.Enabled() {
		logger.Info("tracing enabled", "endpoint", cfg.Otel.Endpoint)
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(cfg.Redis)
	if err != nil {
		return err
	}
	if err := redis.Ping(ctx); err != nil {
		logger.Warn("redis unreachable, anonymous limits fail open", "error", err)
	} else {
		logger.Info("redis connected", "pool_size", cfg.Redis.PoolSize)
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	hasher, err := core.NewFingerprintHasher(cfg.Quota.FingerprintSecret)
	if err != nil {
		return err
	}

	timeout := cfg.Store.Timeout
	resolver := entitlement.NewResolver(entitlement.NewCatalog(), cfg.Quota.AdminAllowlist)

	accountRepo := account.NewRepository(db.DB)
	accountSvc := account.NewService(accountRepo, resolver, timeout, logger)
	accountHandler := account.NewHandler(accountSvc)

	auditLog := audit.NewRecorder(audit.NewRepository(db.DB), timeout, logger)

	ledger := quota.NewLedger(accountRepo, resolver, auditLog, quota.LedgerConfig{
		Timeout: timeout,
		Metrics: m,
		Logger:  logger,
	})

	limiter := anonymous.NewLimiter(redis.Client, hasher, anonymous.Config{
		Budget:  cfg.Quota.AnonymousBudget,
		Timeout: timeout,
		Logger:  logger,
		Metrics: m,
	})

	accessGate := gate.New(accountSvc, limiter, ledger, resolver.Catalog(), gate.Config{
		Metrics: m,
		Logger:  logger,
	})
	gateHandler := gate.NewHandler(accessGate, ledger)

	outboxRepo := outbox.NewRepository(db.DB)
	emitter := outbox.NewEmitter(outboxRepo, timeout, logger)

	notificationSvc := notification.NewService(notification.NewRepository(db.DB), timeout, logger)
	notificationHandler := notification.NewHandler(notificationSvc)

	lifecycleMgr := lifecycle.NewManager(
		accountRepo,
		lifecycle.NewRequestRepository(db.DB),
		lifecycle.NewEraser(db.DB),
		emitter,
		auditLog,
		accountSvc,
		lifecycle.Config{
			InactivityAfter: cfg.Lifecycle.InactivityAfter,
			DeletionGrace:   cfg.Lifecycle.DeletionGrace,
			Timeout:         timeout,
			Metrics:         m,
			Logger:          logger,
		},
	)
	lifecycleHandler := lifecycle.NewHandler(lifecycleMgr)

	billingSvc := billing.NewService(cfg.Stripe, accountSvc, timeout, logger)

	adminSvc := admin.NewService(accountSvc, ledger, emitter, auditLog, billingSvc, limiter, logger)
	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Service:    adminSvc,
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Outbox:     outboxRepo,
	})

	billingHandler := billing.NewHandler(billingSvc, adminSvc, cfg.Stripe.WebhookSecret, logger)

	healthHandler := health.NewHandler(
		health.Check{Name: "database", Checker: db, Critical: true},
		health.Check{Name: "anonymous_store", Checker: redis},
	)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.Every(
				cfg.RateLimit.Window,
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			Skip:   middleware.SkipPaths("/healthz", "/livez", "/readyz", cfg.Metrics.Path),
			Logger: logger,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, m.Handler())
	}

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(jwtManager)
	optionalAuth := middleware.OptionalAuth(jwtManager)
	adminOnly := middleware.RequireAdmin(accountSvc)

	proxy, err := actionsProxy(cfg.Actions)
	if err != nil {
		return err
	}

	router.Route("/v1", func(r chi.Router) {
		gateHandler.RegisterRoutes(r, authenticator, optionalAuth)
		accountHandler.RegisterRoutes(r, authenticator)
		lifecycleHandler.RegisterRoutes(r, authenticator)
		notificationHandler.RegisterRoutes(r, authenticator)
		billingHandler.RegisterRoutes(r, authenticator)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly, lifecycleHandler.RegisterAdminRoutes)

		if proxy != nil {
			for _, action := range gatedActions {
				r.With(optionalAuth, accessGate.Require(action)).
					Handle("/actions/"+string(action), proxy)
			}
		}
	})

	if cfg.Outbox.Enabled {
		channels := []outbox.Channel{{Name: "in_app", Deliverer: notificationSvc}}
		if cfg.SMTP.SMTPEnabled() {
			channels = append(channels, outbox.Channel{
				Name:      "email",
				Deliverer: notification.NewMailer(cfg.SMTP),
			})
		} else {
			logger.Warn("smtp not configured, lifecycle emails disabled")
		}

		dispatcher := outbox.NewDispatcher(outboxRepo, outbox.DispatcherConfig{
			BatchSize:    cfg.Outbox.BatchSize,
			Workers:      cfg.Outbox.Workers,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
			PollInterval: cfg.Outbox.PollInterval,
			Timeout:      cfg.SMTP.Timeout,
			Metrics:      m,
			Logger:       logger,
		}, channels...)

		go func() {
			if err := dispatcher.Run(ctx); err != nil {
				logger.Error("outbox dispatcher stopped", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// actionsProxy forwards gated actions to the backend that performs them. It
// returns nil when no upstream is configured.
func actionsProxy(cfg config.ActionsConfig) (http.Handler, error) {
	if cfg.UpstreamURL == "" {
		return nil, nil
	}

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse actions upstream: %w", err)
	}

	return httputil.NewSingleHostReverseProxy(target), nil
}

// setupLogger accepts any level slog understands ("debug", "WARN",
// "error+2"); anything else logs at info.
func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
