package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"leadbooking_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

// NewRedis opens the shared Redis client used by the availability cache.
// It returns nil when no Redis URL is configured.
func NewRedis(ctx context.Context, cfg config.SchedulerConfig) (redis.UniversalClient, error) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}

	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
