package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadbooking_backend/internal/booking"
	"leadbooking_backend/internal/engine"
	"leadbooking_backend/internal/events"
	apphttp "leadbooking_backend/internal/http"
	"leadbooking_backend/internal/http/router"
	"leadbooking_backend/internal/inbound"
	"leadbooking_backend/internal/notification/audit"
	"leadbooking_backend/internal/notification/fanout"
	"leadbooking_backend/internal/nurture"
	"leadbooking_backend/internal/outreach"
	"leadbooking_backend/internal/scheduler"
	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/db"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	rdb, err := engine.NewRedis(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	var workflow nurture.Workflow
	if cfg.GetAMQPURL() != "" {
		conn, ch, err := nurture.Connect(cfg.GetAMQPURL(), cfg.GetNurtureExchange())
		if err != nil {
			log.Error("failed to connect to nurture broker", "error", err)
			panic("failed to connect to nurture broker: " + err.Error())
		}
		defer func() {
			_ = ch.Close()
			_ = conn.Close()
		}()
		workflow = nurture.NewAMQPNotifier(ch, cfg.GetNurtureExchange())
		log.Info("nurture notifications enabled", "exchange", cfg.GetNurtureExchange())
	}

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// ========================================================================
	// Domain (Composition Root)
	// ========================================================================

	eng, err := engine.New(cfg, pool, eventBus, val, log, engine.Options{Redis: rdb, Nurture: workflow})
	if err != nil {
		log.Error("failed to initialize engine", "error", err)
		panic("failed to initialize engine: " + err.Error())
	}
	defer eng.Close()
	log.Info("tenants loaded", "tenants", eng.Tenants.IDs())

	sweeper, err := eng.Sweeper(cfg, log)
	if err != nil {
		log.Error("failed to initialize sweeper", "error", err)
		panic("failed to initialize sweeper: " + err.Error())
	}

	var worker *scheduler.Worker
	if cfg.GetRedisURL() != "" {
		worker, err = scheduler.NewWorker(cfg, eng.Runner, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
	}

	// Fan-out: live streams plus the audit trail.
	hub := fanout.NewHub(cfg.GetFanoutRingSize(), log)
	hub.Subscribe(eventBus)
	defer hub.Close()

	auditRepo := audit.New(pool)
	var mirrors []fanout.Sink
	if kafkaSink := audit.NewKafkaSink(cfg); kafkaSink != nil {
		defer func() { _ = kafkaSink.Close() }()
		mirrors = append(mirrors, kafkaSink)
		log.Info("kafka audit mirror enabled", "brokers", cfg.GetKafkaBrokers())
	}
	flusher := fanout.NewFlusher(hub.Ring(), audit.NewTee(auditRepo, log, mirrors...),
		cfg.GetFanoutFlushInterval(), cfg.GetFanoutFlushBatch(), log)

	streamHandler := fanout.NewHandler(hub, cfg, log)
	streamHandler.SetHistory(auditRepo)

	retention := scheduler.NewRetentionCleanup(eng.Retry, log,
		cfg.GetRetentionInterval(), cfg.GetSentRetention(), cfg.GetExpiredRetention())

	// ========================================================================
	// HTTP
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			inbound.NewModule(eng.Inbound, eng.Tenants, val, cfg.GetDefaultPhoneRegion()),
			outreach.NewModule(eng.Outreach, eng.Tenants, val),
			booking.NewModule(eng.Committer, eng.Bookings, eng.Tenants, val),
			fanout.NewModule(streamHandler),
		},
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	if worker != nil {
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		flusher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		retention.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// withRetry runs fn up to attempts times with quadratic backoff.
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
