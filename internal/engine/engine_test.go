package engine

import (
	"context"
	"testing"

	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/validator"

	"github.com/alicebob/miniredis/v2"
)

const registryYAML = `
tenants:
  - id: acme
    name: Acme Dental
    calendar_id: acme@calendar.test
    timezone: Europe/London
    phone_numbers: ["+441134960000"]
    default_duration: 30m
    business_hours:
      monday:
        - {start: "09:00", end: "12:00"}
`

func newEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	val := validator.New()
	reg, err := tenants.Parse([]byte(registryYAML), val)
	if err != nil {
		t.Fatalf("parse tenants: %v", err)
	}
	e, err := New(cfg, nil, events.NewInMemoryBus(logger.Nop()), val, logger.Nop(), Options{Registry: reg})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestNewWiresEveryComponent(t *testing.T) {
	e := newEngine(t, &config.Config{})
	if e.Outreach == nil || e.Committer == nil || e.Inbound == nil || e.Executor == nil || e.Runner == nil {
		t.Fatalf("expected a fully wired engine, got %+v", e)
	}
	if _, err := e.Tenants.Get("acme"); err != nil {
		t.Fatalf("registry not wired: %v", err)
	}
}

func TestSweeperWithoutRedisRunsInline(t *testing.T) {
	e := newEngine(t, &config.Config{})
	if _, err := e.Sweeper(&config.Config{}, logger.Nop()); err != nil {
		t.Fatalf("inline sweeper: %v", err)
	}
	if len(e.closers) != 0 {
		t.Fatal("inline sweeper must not open a queue client")
	}
}

func TestSweeperWithRedisUsesQueueClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisURL: "redis://" + mr.Addr()}
	e := newEngine(t, cfg)

	if _, err := e.Sweeper(cfg, logger.Nop()); err != nil {
		t.Fatalf("queue sweeper: %v", err)
	}
	if len(e.closers) != 1 {
		t.Fatalf("expected the queue client to be tracked, got %d closers", len(e.closers))
	}
}

func TestNewRedisDisabledWithoutURL(t *testing.T) {
	rdb, err := NewRedis(context.Background(), &config.Config{})
	if err != nil || rdb != nil {
		t.Fatalf("expected nil client, got %v, %v", rdb, err)
	}
}

func TestNewRedisPings(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedis(context.Background(), &config.Config{RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	defer rdb.Close()
}
