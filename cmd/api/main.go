package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/civic-desk/issue-sla-service/internal/api/http"
	"github.com/civic-desk/issue-sla-service/internal/api/http/handlers"
	"github.com/civic-desk/issue-sla-service/internal/auth"
	"github.com/civic-desk/issue-sla-service/internal/config"
	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/events"
	"github.com/civic-desk/issue-sla-service/internal/observability"
	"github.com/civic-desk/issue-sla-service/internal/persistence"
	"github.com/civic-desk/issue-sla-service/internal/repository"
	"github.com/civic-desk/issue-sla-service/internal/repository/memory"
	"github.com/civic-desk/issue-sla-service/internal/service"
	"github.com/civic-desk/issue-sla-service/internal/sla"
	"github.com/civic-desk/issue-sla-service/internal/worker"
)

// repositories is the data feed selected at startup.
type repositories struct {
	issues      repository.IssueRepository
	assignments repository.AssignmentRepository
	staff       repository.StaffRepository
	updates     repository.IssueUpdateRepository
	escalations repository.EscalationLogRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := sla.DefaultPolicy()
	if cfg.SLA.PolicyFile != "" {
		policy, err = sla.LoadPolicyFile(cfg.SLA.PolicyFile)
		if err != nil {
			logger.Fatal("failed to load sla policy", zap.String("file", cfg.SLA.PolicyFile), zap.Error(err))
		}
		logger.Info("loaded sla policy", zap.String("file", cfg.SLA.PolicyFile))
	}
	classifier := sla.NewClassifier(policy)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var repos repositories
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		pool := pg.PoolHandle()
		repos = repositories{
			issues:      repository.NewIssueRepository(pool),
			assignments: repository.NewAssignmentRepository(pool),
			staff:       repository.NewStaffRepository(pool),
			updates:     repository.NewIssueUpdateRepository(pool),
			escalations: repository.NewEscalationLogRepository(pool),
		}
	} else {
		store := memory.NewStore()
		if err := seedBootstrapAdmin(store, cfg.Auth); err != nil {
			logger.Fatal("failed to seed bootstrap admin", zap.Error(err))
		}
		repos = repositories{
			issues:      store.Issues,
			assignments: store.Assignments,
			staff:       store.Staff,
			updates:     store.Updates,
			escalations: store.EscalationLog,
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	escalationDeps := service.EscalationDependencies{
		IssueRepo:  repos.issues,
		UpdateRepo: repos.updates,
		LogRepo:    repos.escalations,
		Classifier: classifier,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger.Named("escalation"),
	}
	if redis != nil {
		escalationDeps.Locker = persistence.NewRedisLocker(redis.Client, "")
	}
	escalationService := service.NewEscalationService(cfg.Escalation, escalationDeps)

	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		IssueRepo:      repos.issues,
		AssignmentRepo: repos.assignments,
		StaffRepo:      repos.staff,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger.Named("assignment"),
	})
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:      repos.issues,
		AssignmentRepo: repos.assignments,
		UpdateRepo:     repos.updates,
		StaffRepo:      repos.staff,
		Classifier:     classifier,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger.Named("issue"),
	})
	authService := service.NewAuthService(cfg.Auth, repos.staff)
	notificationService := service.NewNotificationService(dispatcher, logger.Named("notification"), cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	sweeper := worker.NewEscalationWorker(escalationService, issueService, notificationService, cfg.Escalation.SweepInterval, logger.Named("sweeper"))
	go sweeper.Run(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Issues:         handlers.NewIssuesHandler(issueService),
		Escalations:    handlers.NewEscalationsHandler(escalationService),
		Assignments:    handlers.NewAssignmentsHandler(assignmentService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), repos.staff),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

// seedBootstrapAdmin gives the in-memory feed one administrator to log in with.
func seedBootstrapAdmin(store *memory.Store, cfg config.AuthConfig) error {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}
	hash, err := auth.HashPassword(cfg.BootstrapAdminPassword, cfg.BcryptCost)
	if err != nil {
		return err
	}
	store.PutStaff(domain.StaffMember{
		Name:         "Administrator",
		Email:        cfg.BootstrapAdminEmail,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Active:       true,
	})
	return nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
