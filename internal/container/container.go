// Package container wires the application together: database, repositories,
// domain engines, services, dispatcher and notification consumers. Teardown
// runs in reverse initialization order.
package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/analyzer"
	"github.com/billwise/invoice-autopilot/internal/application/dispatcher"
	"github.com/billwise/invoice-autopilot/internal/application/port"
	"github.com/billwise/invoice-autopilot/internal/application/service"
	appworkflow "github.com/billwise/invoice-autopilot/internal/application/workflow"
	"github.com/billwise/invoice-autopilot/internal/config"
	"github.com/billwise/invoice-autopilot/internal/decision"
	"github.com/billwise/invoice-autopilot/internal/infrastructure/persistence/repository"
	"github.com/billwise/invoice-autopilot/internal/infrastructure/persistence/sqlite"
	"github.com/billwise/invoice-autopilot/internal/notification"
	"github.com/billwise/invoice-autopilot/internal/trust"
	"github.com/billwise/invoice-autopilot/pkg/database"
)

// Repositories groups all persistence ports
type Repositories struct {
	Invoices  port.InvoiceRepository
	Patterns  port.PatternRepository
	Trust     port.TrustScoreRepository
	Decisions port.DecisionRepository
	Workflows port.WorkflowRepository
	Reviewers port.ReviewerDirectory
}

// Services groups all application services
type Services struct {
	Invoice  service.InvoiceService
	Analyze  service.AnalyzeService
	Decision service.DecisionService
	Trust    service.TrustService
}

// Container holds every initialized component
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *database.DB
	TxManager    *sqlite.DB
	Repositories Repositories
	Dispatcher   dispatcher.Dispatcher
	Pipeline     *appworkflow.Engine
	Services     Services
}

// New builds the full dependency graph. The database must already be migrated.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	txManager := sqlite.NewDB(db.DB, logger)

	repos := Repositories{
		Invoices:  repository.NewInvoiceRepository(db.DB, logger),
		Patterns:  repository.NewPatternRepository(db.DB, logger),
		Trust:     repository.NewTrustScoreRepository(db.DB, logger),
		Decisions: repository.NewDecisionRepository(db.DB, logger),
		Workflows: repository.NewWorkflowRepository(db.DB, logger),
		Reviewers: repository.NewReviewerRepository(db.DB, logger),
	}

	disp := dispatcher.New(logger)

	notifier := notification.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.Timeout, logger)
	notification.NewSubscriber(notifier, repos.Workflows, logger).Register(disp)

	decisionEngine := decision.NewEngine(cfg.Decision, logger)
	patternAnalyzer := analyzer.New(repos.Invoices, repos.Patterns, cfg.Decision, cfg.Analysis, logger)
	scorer := trust.NewScorer(repos.Decisions, repos.Trust, disp, logger)
	trust.NewSubscriber(scorer, logger).Register(disp)

	pipeline := appworkflow.NewEngine(
		repos.Invoices,
		repos.Workflows,
		repos.Patterns,
		repos.Trust,
		repos.Decisions,
		repos.Reviewers,
		decisionEngine,
		txManager,
		disp,
		cfg.Decision,
		logger,
	)

	services := Services{
		Invoice:  service.NewInvoiceService(repos.Invoices, logger),
		Analyze:  service.NewAnalyzeService(patternAnalyzer, repos.Invoices, logger),
		Decision: service.NewDecisionService(pipeline, repos.Workflows, repos.Decisions, logger),
		Trust:    service.NewTrustService(scorer, logger),
	}

	return &Container{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		TxManager:    txManager,
		Repositories: repos,
		Dispatcher:   disp,
		Pipeline:     pipeline,
		Services:     services,
	}, nil
}

// Close tears the container down in reverse order. The dispatcher drains
// in-flight notifications before the database closes underneath them.
func (c *Container) Close() error {
	var firstErr error

	if err := c.Dispatcher.Close(); err != nil {
		c.Logger.Error("Failed to close dispatcher", zap.Error(err))
		firstErr = err
	}

	if err := c.DB.Close(); err != nil {
		c.Logger.Error("Failed to close database", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
