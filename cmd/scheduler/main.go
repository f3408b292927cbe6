package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"loadline_backend/internal/calls"
	"loadline_backend/internal/events"
	"loadline_backend/internal/intake"
	"loadline_backend/internal/leads"
	"loadline_backend/internal/notification"
	"loadline_backend/internal/reconcile"
	"loadline_backend/internal/scheduler"
	"loadline_backend/internal/tenancy"
	"loadline_backend/internal/voiceagent"
	"loadline_backend/platform/config"
	"loadline_backend/platform/db"
	"loadline_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	notification.NewModule(eventBus, cfg, log)

	var redisClient *redis.Client
	if cfg.GetRedisURL() != "" {
		opt, err := redis.ParseURL(cfg.GetRedisURL())
		if err != nil {
			log.Error("invalid REDIS_URL", "error", err)
			panic("invalid REDIS_URL: " + err.Error())
		}
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
	}

	tenantResolver := tenancy.NewResolver(tenancy.NewRepository(pool), redisClient, cfg.GetTenantCacheTTL(), cfg.GetDefaultTenantID(), log)

	// The worker never re-dispatches, so the intake service runs without a
	// dispatcher here.
	intakeModule := intake.NewModule(pool, tenantResolver, nil, nil, eventBus, log)

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

	sweep := scheduler.NewReconcileSweep(reconcileService, log, cfg.GetReconcileInterval(), cfg.GetReconcileLookbackHours())

	// Without Redis the API process handles completions in its in-process
	// pool; this binary then only runs the periodic reconciliation sweep.
	if redisClient == nil {
		log.Info("REDIS_URL not set, running reconciliation sweep only")
		sweep.Run(ctx)
		return
	}

	go sweep.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, intakeModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
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
		return errors.New(name + ": invalid retry attempts")
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
