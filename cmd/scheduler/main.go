package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadbooking_backend/internal/engine"
	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/nurture"
	"leadbooking_backend/internal/scheduler"
	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/db"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
)

func main() {
	var once, noRetention bool
	flagSet := pflag.NewFlagSet("scheduler", pflag.ContinueOnError)
	flagSet.BoolVar(&once, "once", false, "run a single inline sweep of due retry entries and exit")
	flagSet.BoolVar(&noRetention, "no-retention", false, "do not delete finished retry entries")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "once", once)

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
	}

	// Events raised here are not streamed; the API process owns the fan-out.
	eventBus := events.NewInMemoryBus(log)

	eng, err := engine.New(cfg, pool, eventBus, validator.New(), log, engine.Options{Redis: rdb, Nurture: workflow})
	if err != nil {
		log.Error("failed to initialize engine", "error", err)
		panic("failed to initialize engine: " + err.Error())
	}
	defer eng.Close()

	if once {
		opts := scheduler.SweepOptionsFromConfig(cfg)
		opts.Lookahead = 0
		sweeper := scheduler.NewSweeper(eng.Retry, scheduler.NewInlineDispatcher(eng.Runner), opts, log)
		n, err := sweeper.RunOnce(ctx)
		if err != nil {
			log.Error("sweep failed", "error", err)
			os.Exit(1)
		}
		log.Info("sweep complete", "entries", n)
		return
	}

	sweeper, err := eng.Sweeper(cfg, log)
	if err != nil {
		log.Error("failed to initialize sweeper", "error", err)
		panic("failed to initialize sweeper: " + err.Error())
	}
	go sweeper.Run(ctx)

	if !noRetention {
		go scheduler.NewRetentionCleanup(eng.Retry, log,
			cfg.GetRetentionInterval(), cfg.GetSentRetention(), cfg.GetExpiredRetention()).Run(ctx)
	}

	if cfg.GetRedisURL() == "" {
		<-ctx.Done()
		return
	}

	worker, err := scheduler.NewWorker(cfg, eng.Runner, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}
	worker.Run(ctx)
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
