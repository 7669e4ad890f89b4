package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/property-backoffice/internal/api/http"
	"github.com/spec-kit/property-backoffice/internal/api/http/handlers"
	"github.com/spec-kit/property-backoffice/internal/auth"
	"github.com/spec-kit/property-backoffice/internal/cardnet"
	"github.com/spec-kit/property-backoffice/internal/config"
	"github.com/spec-kit/property-backoffice/internal/erp"
	"github.com/spec-kit/property-backoffice/internal/events"
	"github.com/spec-kit/property-backoffice/internal/helpdesk"
	"github.com/spec-kit/property-backoffice/internal/mailer"
	"github.com/spec-kit/property-backoffice/internal/observability"
	"github.com/spec-kit/property-backoffice/internal/persistence"
	"github.com/spec-kit/property-backoffice/internal/repository"
	"github.com/spec-kit/property-backoffice/internal/service"
	"github.com/spec-kit/property-backoffice/internal/worker"
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
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.Pool
	userRepo := repository.NewUserRepository(pool)
	requestRepo := repository.NewServiceRequestRepository(pool)
	quotationRepo := repository.NewQuotationRepository(pool)
	transitionRepo := repository.NewTransitionRepository(pool)
	attemptRepo := repository.NewPaymentAttemptRepository(pool)
	cardRepo := repository.NewCreditCardRepository(pool)
	serviceRepo := repository.NewServiceRepository(pool)
	propertyRepo := repository.NewPropertyRepository(pool)

	helpdeskClient := helpdesk.NewClient(cfg.Helpdesk, logger)
	erpClient := erp.NewClient(cfg.ERP, logger)
	gatewayClient := cardnet.NewClient(cfg.Gateway, logger)
	locks := persistence.NewRedisLocker(redis.Client)

	dispatcher := events.NewAsyncDispatcher(128, logger)
	smtpMailer := mailer.NewSMTPMailer(cfg.Notification, logger)
	notificationService := service.NewNotificationService(dispatcher, smtpMailer, logger, cfg.Notification)
	worker.StartNotificationWorker(ctx, dispatcher, notificationService)

	authService := service.NewAuthService(*cfg, userRepo)
	solicitudeService := service.NewSolicitudeService(service.SolicitudeDependencies{
		RequestRepo:    requestRepo,
		QuotationRepo:  quotationRepo,
		TransitionRepo: transitionRepo,
		ServiceRepo:    serviceRepo,
		PropertyRepo:   propertyRepo,
		Helpdesk:       helpdeskClient,
		ERP:            erpClient,
		Locks:          locks,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	paymentService := service.NewPaymentService(service.PaymentDependencies{
		AttemptRepo: attemptRepo,
		CardRepo:    cardRepo,
		Gateway:     gatewayClient,
		ERP:         erpClient,
		Locks:       locks,
		Dispatcher:  dispatcher,
		Logger:      logger,
		GatewayCfg:  cfg.Gateway,
	})

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager, userRepo)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Auth:            handlers.NewAuthHandler(authService),
		ServiceRequests: handlers.NewServiceRequestsHandler(solicitudeService),
		Webhooks:        handlers.NewWebhooksHandler(solicitudeService),
		Payments:        handlers.NewPaymentsHandler(paymentService),
		CreditCards:     handlers.NewCreditCardsHandler(paymentService),
		Catalog:         handlers.NewCatalogHandler(serviceRepo, propertyRepo),
		AuthMiddleware:  authMiddleware,
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
