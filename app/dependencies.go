package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/upb/stockbot/auth"
	"github.com/upb/stockbot/config"
	"github.com/upb/stockbot/handlers"
	"github.com/upb/stockbot/internal/observability"
	"github.com/upb/stockbot/middleware"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/repositories"
	"github.com/upb/stockbot/repositories/aliasfile"
	"github.com/upb/stockbot/repositories/memory"
	"github.com/upb/stockbot/repositories/postgres"
	"github.com/upb/stockbot/repositories/sqlite"
	"github.com/upb/stockbot/services/access"
	"github.com/upb/stockbot/services/assistant"
	"github.com/upb/stockbot/services/audit"
	"github.com/upb/stockbot/services/budget"
	"github.com/upb/stockbot/services/market"
	"github.com/upb/stockbot/services/news"
	"github.com/upb/stockbot/services/pricing"
	"github.com/upb/stockbot/services/providers"
	"github.com/upb/stockbot/services/providers/openai"
	"github.com/upb/stockbot/services/session"
	"github.com/upb/stockbot/services/telegram"
	"github.com/upb/stockbot/services/ticker"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long Close waits for queued audit events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// DB is nil for the memory driver
	DB         *sql.DB
	closeStore func() error
	storeCheck func(ctx context.Context) error

	// Repositories
	Repos *repositories.Repositories

	// Services
	Access     *access.Service
	Audit      *audit.AuditService
	Budget     *budget.Service
	Sessions   *session.Store
	Estimator  *pricing.Estimator
	AliasStore *aliasfile.Store
	Resolver   *ticker.Resolver
	Catalog    *ticker.Catalog
	Quotes     *market.YahooQuotes
	News       *news.AlphaVantageClient
	Completion providers.Provider
	Assistant  *assistant.Service

	// Transports. Bot is nil when Telegram is disabled.
	Tokens         *auth.Tokens
	AuthMiddleware *middleware.AuthMiddleware
	Bot            *telegram.Bot

	// HTTP handlers
	HealthHandler    *handlers.HealthHandler
	AssistantHandler *handlers.AssistantHandler
	AdminHandler     *handlers.AdminHandler

	stopCh      chan struct{}
	cancelWatch context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		stopCh:  make(chan struct{}),
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initServices(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initAliases(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize alias table: %w", err)
	}

	deps.initAssistant(cfg)
	deps.initTransports(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("database", cfg.Database.LogString()),
		zap.Int("aliases", deps.Resolver.Len()),
		zap.Bool("telegram", deps.Bot != nil),
		zap.Bool("http", cfg.Server.Enabled))
	return deps, nil
}

// initDatabase opens the configured store and creates its schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		d.Repos = memory.NewStore().Repositories()
		d.closeStore = func() error { return nil }
		d.Logger.Warn("using in-memory storage, spend and access changes are lost on restart")

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Database.SQLitePath, d.Logger)
		if err != nil {
			return err
		}
		d.Repos = store.Repositories()
		d.closeStore = store.Close
		d.storeCheck = store.HealthCheck

	case config.DriverPostgres:
		factory, err := postgres.NewRepositoryFactory(ctx, cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.Repos = factory.NewRepositories()
		d.DB = factory.GetDB().DB
		d.closeStore = factory.Close

	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	d.Logger.Info("storage initialized", zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initServices builds the ledger, allow-list, audit trail and collaborators
func (d *Dependencies) initServices(ctx context.Context, cfg *config.Config) error {
	d.Audit = audit.NewAuditService(d.Repos.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Access = access.NewService(d.Repos.Access, d.Logger)
	if err := d.Access.Seed(ctx, cfg.Access.AllowedUsers, cfg.Access.AdminUsers); err != nil {
		return fmt.Errorf("failed to seed allow-list: %w", err)
	}

	loc, err := cfg.Budget.Location()
	if err != nil {
		return fmt.Errorf("invalid budget timezone: %w", err)
	}
	d.Budget = budget.NewService(d.Repos.Ledger, d.Repos.TxManager, budget.Limits{
		MaxRequestCost: decimal.NewFromFloat(cfg.Budget.MaxRequestCost),
		DailyLimit:     decimal.NewFromFloat(cfg.Budget.DailyLimit),
	}, d.Logger, budget.WithLocation(loc))

	d.Sessions = session.NewStore(cfg.Session.MaxPendingUsers, cfg.Session.PendingTTL, d.Logger)
	go d.Sessions.StartCleanupWorker(cfg.Session.CleanupInterval, d.stopCh)

	prices := pricing.DefaultPrices()
	if _, ok := prices.Lookup(cfg.Completion.Model); !ok {
		d.Logger.Warn("completion model has no price entry, every estimate will fail",
			zap.String("model", cfg.Completion.Model))
	}
	d.Estimator = pricing.NewEstimator(cfg.Completion.Model, prices,
		pricing.NewTiktokenTokenizer(cfg.Completion.Model, d.Logger), d.Logger)

	d.Quotes = market.NewYahooQuotes(d.Logger)
	d.News = news.NewAlphaVantageClient(news.Config{
		APIKey:   cfg.News.APIKey,
		BaseURL:  cfg.News.BaseURL,
		MaxItems: cfg.News.MaxItems,
		Timeout:  cfg.News.Timeout,
	}, d.Logger)

	d.Completion = openai.NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:     cfg.Completion.APIKey,
		BaseURL:    cfg.Completion.Endpoint,
		Deployment: cfg.Completion.Deployment,
		APIVersion: cfg.Completion.APIVersion,
		Timeout:    cfg.Completion.Timeout,
		MaxRetries: cfg.Completion.MaxRetries,
		RetryDelay: time.Second,
	})

	d.Logger.Info("services initialized",
		zap.String("model", cfg.Completion.Model),
		zap.String("budget_timezone", loc.String()))
	return nil
}

// initAliases loads the alias table and follows edits to its file
func (d *Dependencies) initAliases(ctx context.Context, cfg *config.Config) error {
	d.AliasStore = aliasfile.NewStore(cfg.Aliases.File, d.Logger)
	aliases, err := d.AliasStore.Load()
	if err != nil {
		return err
	}

	d.Resolver = ticker.NewResolver(aliases)
	d.Catalog = ticker.NewCatalog(d.Resolver, d.AliasStore, d.Quotes, d.Access, d.Logger)
	d.Catalog.SetAuditor(d.Audit)

	if !cfg.Aliases.Watch {
		return nil
	}
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := d.AliasStore.Watch(watchCtx, func(next []models.Alias) {
		d.Catalog.Reload(next)
		d.Logger.Info("alias table reloaded", zap.Int("aliases", len(next)))
	}); err != nil {
		cancel()
		d.Logger.Warn("alias file watch disabled", zap.Error(err))
		return nil
	}
	d.cancelWatch = cancel
	return nil
}

// initAssistant builds the orchestrator
func (d *Dependencies) initAssistant(cfg *config.Config) {
	d.Assistant = assistant.NewService(assistant.Deps{
		Resolver:   d.Resolver,
		Quotes:     d.Quotes,
		News:       d.News,
		Estimator:  d.Estimator,
		Ledger:     d.Budget,
		Sessions:   d.Sessions,
		Completion: d.Completion,
		Access:     d.Access,
		Audit:      d.Audit,
		Metrics:    d.Metrics,
	}, d.Logger)
}

// initTransports builds the HTTP handlers and the Telegram bot
func (d *Dependencies) initTransports(cfg *config.Config) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		d.Logger.Warn("JWT_SECRET not set, using a random secret; issued tokens will not survive a restart")
	}
	d.Tokens = auth.NewTokens(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Tokens, d.Access, d.Logger)

	checks := []handlers.ReadinessCheck{{
		Name: "aliases",
		Check: func(context.Context) error {
			if d.Resolver.Len() == 0 {
				return errors.New("alias table is empty")
			}
			return nil
		},
	}}
	if d.storeCheck != nil {
		checks = append(checks, handlers.ReadinessCheck{Name: "store", Check: d.storeCheck})
	}
	d.HealthHandler = handlers.NewHealthHandler(d.DB, d.Logger, checks...)
	d.AssistantHandler = handlers.NewAssistantHandler(d.Assistant, d.Catalog, d.Audit, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Catalog, d.Access, d.Logger)

	if cfg.Telegram.Enabled {
		client := telegram.NewClient(cfg.Telegram.BaseURL, cfg.Telegram.Token, cfg.Telegram.PollTimeout,
			telegram.WithSendRate(cfg.Telegram.SendRate))
		d.Bot = telegram.NewBot(client, d.Assistant, d.Catalog, cfg.Telegram.QueueSize, d.Logger.Named("telegram"))
	}
}

// Close gracefully shuts down all dependencies. Later calls return the
// first call's result.
func (d *Dependencies) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closeErr = d.close()
	})
	return d.closeErr
}

func (d *Dependencies) close() error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.cancelWatch != nil {
		d.cancelWatch()
	}
	close(d.stopCh)

	if d.Audit != nil {
		if err := d.Audit.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.closeStore != nil {
		if err := d.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
