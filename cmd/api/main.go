package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/coverdesk/workflow-service/internal/api/http"
	"github.com/coverdesk/workflow-service/internal/api/http/handlers"
	"github.com/coverdesk/workflow-service/internal/auth"
	"github.com/coverdesk/workflow-service/internal/config"
	"github.com/coverdesk/workflow-service/internal/events"
	"github.com/coverdesk/workflow-service/internal/observability"
	"github.com/coverdesk/workflow-service/internal/persistence"
	"github.com/coverdesk/workflow-service/internal/repository"
	"github.com/coverdesk/workflow-service/internal/repository/memory"
	"github.com/coverdesk/workflow-service/internal/service"
	"github.com/coverdesk/workflow-service/internal/worker"
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

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisConn := persistence.NewRedis(cfg.Redis, logger)
	defer redisConn.Close()

	var (
		departmentRepo repository.DepartmentRepository
		workclassRepo  repository.WorkClassRepository
		agentRepo      repository.AgentRepository
		ticketRepo     repository.TicketRepository
		activityRepo   repository.ActivityRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		departmentRepo = repository.NewDepartmentRepository(pool)
		workclassRepo = repository.NewWorkClassRepository(pool)
		agentRepo = repository.NewAgentRepository(pool, workclassRepo)
		ticketRepo = repository.NewTicketRepository(pool)
		activityRepo = repository.NewActivityRepository(pool)
	} else {
		logger.Warn("no postgres DSN configured; using in-memory store")
		store := memory.New()
		departmentRepo = store.Departments()
		workclassRepo = store.WorkClasses()
		agentRepo = store.Agents()
		ticketRepo = store.Tickets()
		activityRepo = store.Activities()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:   ticketRepo,
		AgentRepo:    agentRepo,
		ActivityRepo: activityRepo,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Metrics:      metrics,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		AgentRepo:      agentRepo,
		DepartmentRepo: departmentRepo,
		ActivityRepo:   activityRepo,
		Assignment:     assignmentService,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Metrics:        metrics,
	})
	agentService := service.NewAgentService(*cfg, service.DirectoryDependencies{
		DepartmentRepo: departmentRepo,
		WorkClassRepo:  workclassRepo,
		AgentRepo:      agentRepo,
	})
	authService := service.NewAuthService(*cfg, agentRepo)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	slaMonitor := worker.NewSLAMonitor(ticketService, assignmentService, dispatcher,
		redisConn.Client, logger, metrics, cfg.Scheduler)
	if err := slaMonitor.Start(); err != nil {
		logger.Fatal("failed to start sla monitor", zap.Error(err))
	}
	defer slaMonitor.Stop()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), agentRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisConn, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, assignmentService),
		Assignments:    handlers.NewAssignmentsHandler(ticketService, assignmentService),
		Agents:         handlers.NewAgentsHandler(agentService),
		AuthMiddleware: authMiddleware,
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
