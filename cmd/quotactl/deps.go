// AngelaMos | 2026
// deps.go

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/admin"
	"github.com/carterperez-dev/legalquota/internal/anonymous"
	"github.com/carterperez-dev/legalquota/internal/audit"
	"github.com/carterperez-dev/legalquota/internal/auth"
	"github.com/carterperez-dev/legalquota/internal/billing"
	"github.com/carterperez-dev/legalquota/internal/config"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
	"github.com/carterperez-dev/legalquota/internal/lifecycle"
	"github.com/carterperez-dev/legalquota/internal/notification"
	"github.com/carterperez-dev/legalquota/internal/outbox"
	"github.com/carterperez-dev/legalquota/internal/quota"
)

// deps is the operator toolset, wired against the same stores the API uses.
type deps struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *core.Database
	redis      *core.Redis
	admin      *admin.Service
	lifecycle  *lifecycle.Manager
	dispatcher *outbox.Dispatcher
	jwt        *auth.JWTManager
}

func openDeps(ctx context.Context, configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	hasher, err := core.NewFingerprintHasher(cfg.Quota.FingerprintSecret)
	if err != nil {
		return nil, err
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	rdb, err := core.NewRedis(cfg.Redis)
	if err != nil {
		//nolint:errcheck // already failing
		_ = db.Close()
		return nil, err
	}

	timeout := cfg.Store.Timeout
	resolver := entitlement.NewResolver(entitlement.NewCatalog(), cfg.Quota.AdminAllowlist)

	accountRepo := account.NewRepository(db.DB)
	accountSvc := account.NewService(accountRepo, resolver, timeout, logger)
	auditLog := audit.NewRecorder(audit.NewRepository(db.DB), timeout, logger)
	ledger := quota.NewLedger(accountRepo, resolver, auditLog, quota.LedgerConfig{
		Timeout: timeout,
		Logger:  logger,
	})
	limiter := anonymous.NewLimiter(rdb.Client, hasher, anonymous.Config{
		Budget:  cfg.Quota.AnonymousBudget,
		Timeout: timeout,
		Logger:  logger,
	})

	outboxRepo := outbox.NewRepository(db.DB)
	emitter := outbox.NewEmitter(outboxRepo, timeout, logger)

	channels := []outbox.Channel{{
		Name:      "in_app",
		Deliverer: notification.NewService(notification.NewRepository(db.DB), timeout, logger),
	}}
	if cfg.SMTP.SMTPEnabled() {
		channels = append(channels, outbox.Channel{Name: "email", Deliverer: notification.NewMailer(cfg.SMTP)})
	}

	d := &deps{
		cfg:    cfg,
		logger: logger,
		db:     db,
		redis:  rdb,
		admin: admin.NewService(
			accountSvc,
			ledger,
			emitter,
			auditLog,
			billing.NewService(cfg.Stripe, accountSvc, timeout, logger),
			limiter,
			logger,
		),
		lifecycle: lifecycle.NewManager(
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
				Logger:          logger,
			},
		),
		dispatcher: outbox.NewDispatcher(outboxRepo, outbox.DispatcherConfig{
			BatchSize:   cfg.Outbox.BatchSize,
			Workers:     cfg.Outbox.Workers,
			MaxAttempts: cfg.Outbox.MaxAttempts,
			Timeout:     cfg.SMTP.Timeout,
			Logger:      logger,
		}, channels...),
	}

	return d, nil
}

// signer loads the JWT key only for the commands that mint tokens.
func (d *deps) signer() (*auth.JWTManager, error) {
	if d.jwt != nil {
		return d.jwt, nil
	}
	m, err := auth.NewJWTManager(d.cfg.JWT)
	if err != nil {
		return nil, err
	}
	d.jwt = m
	return m, nil
}

func (d *deps) Close() {
	if err := d.redis.Close(); err != nil {
		d.logger.Warn("redis close", "error", err)
	}
	if err := d.db.Close(); err != nil {
		d.logger.Warn("database close", "error", err)
	}
}
