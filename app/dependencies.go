package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ruleplane/backend/config"
	"github.com/ruleplane/backend/internal/observability"
	"github.com/ruleplane/backend/middleware"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/repositories/postgres"
	"github.com/ruleplane/backend/services/approval"
	"github.com/ruleplane/backend/services/audit"
	"github.com/ruleplane/backend/services/category"
	"github.com/ruleplane/backend/services/enforcement"
	"github.com/ruleplane/backend/services/events"
	"github.com/ruleplane/backend/services/exception"
	"github.com/ruleplane/backend/services/rules"
	"github.com/ruleplane/backend/services/sweep"
	"github.com/ruleplane/backend/services/team"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Collaborators
	AuditService *audit.Service
	Dispatcher   *events.Dispatcher

	// Domain services
	RuleService        *rules.Service
	ApprovalService    *approval.Service
	EnforcementService *enforcement.Service
	ExceptionService   *exception.Service
	CategoryService    *category.Service
	TeamService        *team.Service

	// Deadline sweeper
	SweepScheduler *sweep.Scheduler

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()
	deps.initServices(cfg)
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection pool and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := d.DB.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Repos = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initServices wires the audit writer, event dispatcher, domain services
// and the deadline sweeper
func (d *Dependencies) initServices(cfg *config.Config) {
	d.AuditService = audit.NewService(d.Repos.AuditEntries, d.Logger, audit.DefaultConfig())

	d.Dispatcher = events.NewDispatcher(1024, d.Logger, d.Metrics)
	d.Dispatcher.Register(events.NewLoggingNotifier(d.Logger))

	d.RuleService = rules.NewService(
		d.Repos.Rules, d.Repos.Teams, d.AuditService, d.Dispatcher, d.Logger)
	d.ApprovalService = approval.NewService(
		d.Repos.Rules, d.Repos.Approvals, d.TxManager, cfg.Quorum,
		d.AuditService, d.Dispatcher, d.Logger)
	d.EnforcementService = enforcement.NewService(
		d.Repos.ChangeRequests, d.Repos.Rules, d.AuditService, d.Dispatcher,
		d.Metrics, d.Logger, cfg.Enforcement.SweepBatchSize)
	d.ExceptionService = exception.NewService(
		d.Repos.Exceptions, d.Repos.ChangeRequests, d.TxManager,
		d.AuditService, d.Dispatcher, d.Metrics, d.Logger,
		cfg.Enforcement.SweepBatchSize)
	d.CategoryService = category.NewService(
		d.Repos.Categories, d.Repos.Rules, d.TxManager, d.AuditService,
		d.Dispatcher, d.Logger)
	d.TeamService = team.NewService(d.Repos.Teams, d.AuditService, d.Dispatcher, d.Logger)

	d.SweepScheduler = sweep.NewScheduler(cfg.Enforcement.SweepSchedule, d.Logger,
		sweep.NewFunc("change_request_timeout", d.EnforcementService.Sweep),
		sweep.NewFunc("exception_expiry", d.ExceptionService.SweepExpired),
	)

	d.Logger.Info("services initialized",
		zap.String("sweep_schedule", cfg.Enforcement.SweepSchedule))
}

// initAuth wires the token validator behind the auth middleware
func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("jwt secret not configured, protected routes will reject all tokens")
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return
	}
	validator := middleware.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
}

// rejectAllValidator rejects all tokens (used when no secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Start brings up the background collaborators: the audit writer, the
// event dispatcher, and the deadline sweeper.
func (d *Dependencies) Start(ctx context.Context) error {
	if err := d.AuditService.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}
	d.Dispatcher.Start()
	if err := d.SweepScheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweep scheduler: %w", err)
	}
	return nil
}

// Close gracefully shuts down all dependencies. The sweeper stops first
// so no new transitions are produced while the audit writer drains.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.SweepScheduler != nil {
		d.SweepScheduler.Stop()
	}

	if d.Dispatcher != nil {
		d.Dispatcher.Stop()
	}

	if d.AuditService != nil {
		if err := d.AuditService.Stop(10 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain audit writer: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
