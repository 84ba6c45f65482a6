package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewStore picks the backend named by RATE_LIMIT_STORE. The redis client is
// closed when the application stops.
func NewStore(cfg *config.Config, policies Policies, lc fx.Lifecycle, logger *logging.Service) (Store, error) {
	switch cfg.RateLimit.Store {
	case "", "memory":
		if logger != nil {
			logger.Info("using in-memory rate limit store", zap.Int("max_keys", cfg.RateLimit.MaxKeys))
		}
		return NewMemoryStore(cfg.RateLimit.MaxKeys, policies.Longest()), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		if lc != nil {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := client.Ping(ctx).Err(); err != nil && logger != nil {
						logger.Warn("rate limit redis unreachable, requests will not be limited", zap.Error(err))
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return client.Close()
				},
			})
		}
		if logger != nil {
			logger.Info("using redis rate limit store", zap.String("addr", cfg.RateLimit.RedisAddr))
		}
		return NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit store: %s", cfg.RateLimit.Store)
	}
}

var Module = fx.Options(
	fx.Provide(
		NewPolicies,
		NewStore,
		NewLimiter,
	),
)
