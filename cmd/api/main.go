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

	httptransport "github.com/spec-kit/collab-engine/internal/api/http"
	"github.com/spec-kit/collab-engine/internal/api/http/handlers"
	"github.com/spec-kit/collab-engine/internal/config"
	"github.com/spec-kit/collab-engine/internal/events"
	"github.com/spec-kit/collab-engine/internal/observability"
	"github.com/spec-kit/collab-engine/internal/persistence"
	"github.com/spec-kit/collab-engine/internal/repository"
	"github.com/spec-kit/collab-engine/internal/service"
	"github.com/spec-kit/collab-engine/internal/worker"
)

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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	policy, err := service.LoadResolutionPolicy(cfg.Engine.PolicyFile)
	if err != nil {
		logger.Fatal("failed to load resolution policy", zap.Error(err))
	}
	validator, err := service.NewProposalValidator(cfg.Engine.SchemaFile)
	if err != nil {
		logger.Fatal("failed to load field schema", zap.Error(err))
	}

	pool := pg.PoolHandle()
	entityRepo := repository.NewEntityRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	snapshotRepo := repository.NewSnapshotRepository(pool)
	conflictRepo := repository.NewConflictRepository(pool)
	bulkRepo := repository.NewBulkRepository(pool)
	sessionRepo := repository.NewSessionRepository(redis.Client)
	idempotency := repository.NewIdempotencyStore(redis.Client)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	historyService := service.NewHistoryService(service.HistoryDependencies{
		EntityRepo:   entityRepo,
		AuditRepo:    auditRepo,
		SnapshotRepo: snapshotRepo,
		Logger:       logger,
	})
	changeService := service.NewChangeService(service.ChangeDependencies{
		EntityRepo:   entityRepo,
		AuditRepo:    auditRepo,
		ConflictRepo: conflictRepo,
		Idempotency:  idempotency,
		History:      historyService,
		Validator:    validator,
		Policy:       policy,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		Engine:       cfg.Engine,
	})
	conflictService := service.NewConflictService(service.ConflictDependencies{
		ConflictRepo: conflictRepo,
		EntityRepo:   entityRepo,
		Change:       changeService,
		Logger:       logger,
	})
	sessionService := service.NewSessionService(service.SessionDependencies{
		SessionRepo: sessionRepo,
		EntityRepo:  entityRepo,
		AuditRepo:   auditRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
		TTL:         cfg.Engine.SessionTTL(),
	})
	bulkService := service.NewBulkService(service.BulkDependencies{
		BulkRepo:   bulkRepo,
		Change:     changeService,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	entityService := service.NewEntityService(service.EntityDependencies{
		EntityRepo: entityRepo,
		Change:     changeService,
		Logger:     logger,
	})

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notify)
	notificationService.RegisterHandlers()

	worker.StartSessionSweeper(ctx, sessionService,
		time.Duration(cfg.Engine.SessionSweepSeconds)*time.Second, logger)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Entities:  handlers.NewEntitiesHandler(entityService, changeService, historyService),
		Conflicts: handlers.NewConflictsHandler(conflictService),
		Sessions:  handlers.NewSessionsHandler(sessionService),
		Bulk:      handlers.NewBulkHandler(bulkService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
