package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"loadline_backend/internal/adapters/storage"
	"loadline_backend/internal/calls"
	"loadline_backend/internal/events"
	apphttp "loadline_backend/internal/http"
	"loadline_backend/internal/http/router"
	"loadline_backend/internal/intake"
	"loadline_backend/internal/leads"
	"loadline_backend/internal/notification"
	"loadline_backend/internal/reconcile"
	"loadline_backend/internal/scheduler"
	"loadline_backend/internal/tenancy"
	"loadline_backend/internal/voiceagent"
	"loadline_backend/migrations"
	"loadline_backend/platform/config"
	"loadline_backend/platform/db"
	"loadline_backend/platform/logger"
	"loadline_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.Files)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Redis client backs both the tenant cache and the asynq dispatcher.
	// Everything degrades gracefully when it is absent.
	var redisClient *redis.Client
	if cfg.GetRedisURL() != "" {
		opt, err := redis.ParseURL(cfg.GetRedisURL())
		if err != nil {
			log.Error("invalid REDIS_URL", "error", err)
			panic("invalid REDIS_URL: " + err.Error())
		}
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
	} else {
		log.Warn("REDIS_URL not configured; using in-process dispatch and uncached tenant lookups")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	tenantResolver := tenancy.NewResolver(tenancy.NewRepository(pool), redisClient, cfg.GetTenantCacheTTL(), cfg.GetDefaultTenantID(), log)

	// Payload archiving is optional; intake runs fine without it.
	var archiver intake.Archiver
	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		bucket := cfg.GetMinioBucketPayloadArchive()
		if err := withRetry(ctx, log, "ensure payload archive bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucketExists(ctx, bucket)
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		archiver = intake.NewPayloadArchiver(storageSvc, bucket)
		log.Info("payload archiving enabled", "bucket", bucket)
	}

	// Notification module subscribes to domain events (not HTTP-facing)
	notification.NewModule(eventBus, cfg, log)

	intakeModule := intake.NewModule(pool, tenantResolver, nil, archiver, eventBus, log)

	// Background dispatch: asynq when Redis is configured, otherwise a
	// bounded in-process pool.
	var dispatcher intake.Dispatcher
	if redisClient != nil {
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		defer client.Close()
		dispatcher = client
	} else {
		dispatcher = scheduler.NewPool(intakeModule.Service(), cfg.GetAsynqConcurrency(), log)
	}
	intakeModule.SetDispatcher(dispatcher)

	platformClient := voiceagent.NewClient(cfg, log)
	reconcileService := reconcile.NewService(
		platformClient,
		intake.NewEventRepository(pool),
		calls.NewRepository(pool),
		leads.NewRepository(pool),
		tenantResolver,
		publishLeadCreated(eventBus),
		log,
	)
	reconcileModule := reconcile.NewModule(reconcileService, val, cfg.GetReconcileLookbackHours())

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			intakeModule,
			reconcileModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func publishLeadCreated(bus events.Bus) func(ctx context.Context, leadID, tenantID, callRecordID uuid.UUID, conversationID, phone, source string, requiresCallback bool) {
	return func(ctx context.Context, leadID, tenantID, callRecordID uuid.UUID, conversationID, phone, source string, requiresCallback bool) {
		bus.Publish(ctx, events.LeadCreated{
			BaseEvent:        events.NewBaseEvent(),
			LeadID:           leadID,
			TenantID:         tenantID,
			CallRecordID:     callRecordID,
			ConversationID:   conversationID,
			Phone:            phone,
			Source:           source,
			RequiresCallback: requiresCallback,
		})
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
