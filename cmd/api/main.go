package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadrouting_backend/internal/board"
	"leadrouting_backend/internal/board/writequeue"
	"leadrouting_backend/internal/directory"
	"leadrouting_backend/internal/email"
	"leadrouting_backend/internal/events"
	apphttp "leadrouting_backend/internal/http"
	"leadrouting_backend/internal/http/router"
	"leadrouting_backend/internal/notification"
	"leadrouting_backend/internal/routing"
	routingrepo "leadrouting_backend/internal/routing/repository"
	"leadrouting_backend/internal/scheduler"
	"leadrouting_backend/internal/scoring"
	"leadrouting_backend/platform/config"
	"leadrouting_backend/platform/db"
	"leadrouting_backend/platform/logger"
	"leadrouting_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
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
		return db.RunMigrations(ctx, cfg, "migrations")
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

	boardClient := board.New(cfg, log)

	// Optional redis cache for the board user directory
	var redisClient *redis.Client
	if cfg.GetRedisURL() != "" {
		opt, err := redis.ParseURL(cfg.GetRedisURL())
		if err != nil {
			log.Error("invalid redis url", "error", err)
			panic("invalid redis url: " + err.Error())
		}
		redisClient = redis.NewClient(opt)
		defer func() { _ = redisClient.Close() }()
	} else {
		log.Warn("REDIS_URL not configured; directory caching and reminders disabled")
	}

	resolver := directory.NewResolver(boardClient, redisClient, cfg.GetDirectoryCacheTTL(), log)

	// Single dispatch loop for every outbound board write
	queue := writequeue.NewFromConfig(cfg, log)

	reminderScheduler, closeScheduler := initReminderScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	scoringCfg, err := scoring.LoadConfigFile(cfg.GetScoringDefaultsPath())
	if err != nil {
		log.Error("failed to load scoring defaults", "error", err, "path", cfg.GetScoringDefaultsPath())
		panic("failed to load scoring defaults: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	routingModule := routing.NewModule(routing.Deps{
		Pool:          pool,
		Reader:        boardClient,
		Writer:        boardClient,
		Queue:         queue,
		Resolver:      resolver,
		Bus:           eventBus,
		Scheduler:     reminderScheduler,
		Scoring:       scoringCfg,
		ReminderDelay: cfg.GetApprovalReminderDelay(),
		Validator:     val,
		Logger:        log,
	})

	// Notification module subscribes to domain events (not HTTP-facing)
	sender := email.NewSender(cfg)
	notificationModule := notification.New(sender, routingrepo.New(pool), cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			routingModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		queue.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

func initReminderScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.ReminderScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	reminderClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client", "error", err)
		return nil, nil
	}

	return reminderClient, func() {
		_ = reminderClient.Close()
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

	return fmt.Errorf("%s: %w", name, lastErr)
}
