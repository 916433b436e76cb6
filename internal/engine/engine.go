// Package engine assembles the booking orchestration graph shared by the API
// server and the standalone scheduler.
package engine

import (
	"fmt"

	"leadbooking_backend/internal/booking"
	"leadbooking_backend/internal/calendar"
	"leadbooking_backend/internal/email"
	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/followup"
	"leadbooking_backend/internal/inbound"
	leadrepo "leadbooking_backend/internal/leads/repository"
	"leadbooking_backend/internal/messaging"
	"leadbooking_backend/internal/nurture"
	"leadbooking_backend/internal/outreach"
	"leadbooking_backend/internal/retryqueue"
	"leadbooking_backend/internal/scheduler"
	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/internal/voice"
	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Engine holds the wired components.
type Engine struct {
	Tenants   *tenants.Registry
	Leads     *leadrepo.Repository
	Retry     *retryqueue.Repository
	Bookings  *booking.Repository
	Calendar  *calendar.Resolver
	Sender    *messaging.GuardedSender
	Outreach  *outreach.Dispatcher
	Committer *booking.Committer
	Inbound   *inbound.Service
	Executor  *followup.Executor
	Runner    *scheduler.Runner

	closers []func()
}

// Options carries the optional infrastructure built by the caller.
type Options struct {
	Registry *tenants.Registry
	// Redis backs the availability snapshot cache when set.
	Redis redis.UniversalClient
	// Nurture receives attempt notifications; nil falls back to logging.
	Nurture nurture.Workflow
}

// New wires every component against pool. The tenant registry is loaded from
// the configured file unless opts supplies one.
func New(cfg *config.Config, pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger, opts Options) (*Engine, error) {
	reg := opts.Registry
	if reg == nil {
		loaded, err := tenants.LoadFile(cfg.GetTenantsFile(), val)
		if err != nil {
			return nil, fmt.Errorf("load tenants: %w", err)
		}
		reg = loaded
	}

	e := &Engine{
		Tenants:  reg,
		Leads:    leadrepo.New(pool),
		Retry:    retryqueue.New(pool, cfg.GetRetryMaxAttempts()),
		Bookings: booking.NewRepository(pool),
	}

	resolverOpts := []calendar.ResolverOption{calendar.WithTimeout(cfg.GetProviderTimeout())}
	if opts.Redis != nil {
		resolverOpts = append(resolverOpts, calendar.WithCache(calendar.NewRedisCache(opts.Redis), cfg.GetAvailabilityCacheTTL()))
	}
	var provider calendar.Provider
	if client := calendar.NewClient(cfg); client != nil {
		provider = client
	} else {
		log.Warn("calendar provider not configured; availability calls will fail as transient")
	}
	e.Calendar = calendar.NewResolver(provider, log, resolverOpts...)

	var dialer voice.Dispatcher = voice.Unavailable{}
	if client := voice.NewClient(cfg, cfg.GetCallTimeout()); client != nil {
		dialer = client
	}

	e.Sender = messaging.NewGuardedSender(messaging.NewSender(cfg, log), e.Leads, cfg.GetOptOutFailClosed(), log)

	e.Committer = booking.NewCommitter(booking.Deps{
		Store:    e.Bookings,
		Leads:    e.Leads,
		Calendar: e.Calendar,
		Sender:   e.Sender,
		Email:    email.NewSender(cfg, log),
		Queue:    e.Retry,
		Bus:      bus,
		Log:      log,
	})

	e.Outreach = outreach.NewDispatcher(outreach.Deps{
		Leads:     e.Leads,
		Calendar:  e.Calendar,
		Voice:     dialer,
		Sender:    e.Sender,
		Nurture:   opts.Nurture,
		Committer: e.Committer,
		Queue:     e.Retry,
		Bus:       bus,
		Config:    cfg,
		Log:       log,
	})

	e.Inbound = inbound.New(inbound.Deps{
		Store:     e.Leads,
		Outreach:  e.Outreach,
		Committer: e.Committer,
		Sender:    e.Sender,
		Queue:     e.Retry,
		Bus:       bus,
		Log:       log,
		Region:    cfg.GetDefaultPhoneRegion(),
	})

	e.Executor = followup.NewExecutor(followup.Deps{
		Leads:         e.Leads,
		Outreach:      e.Outreach,
		Bookings:      e.Bookings,
		Reconciler:    e.Committer,
		Tenants:       reg,
		Sender:        e.Sender,
		Queue:         e.Retry,
		Bus:           bus,
		Log:           log,
		FollowUpDelay: cfg.GetFollowUpDelay(),
		MaxNudges:     cfg.GetMaxNudges(),
	})

	e.Runner = scheduler.NewRunner(e.Retry, e.Executor, bus, cfg.GetRetryBackoff(), log)
	return e, nil
}

// Sweeper builds the retry queue sweeper. With Redis configured, due entries
// are handed to asynq; otherwise they run inline and the lookahead is
// dropped so nothing executes early.
func (e *Engine) Sweeper(cfg *config.Config, log *logger.Logger) (*scheduler.Sweeper, error) {
	opts := scheduler.SweepOptionsFromConfig(cfg)
	if cfg.GetRedisURL() == "" {
		opts.Lookahead = 0
		return scheduler.NewSweeper(e.Retry, scheduler.NewInlineDispatcher(e.Runner), opts, log), nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("scheduler client: %w", err)
	}
	e.closers = append(e.closers, func() { _ = client.Close() })
	return scheduler.NewSweeper(e.Retry, client, opts, log), nil
}

// Close releases clients opened by the engine.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}
