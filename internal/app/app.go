// Package app wires shared infrastructure for the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/obs"
)

// NewPool opens a pgx connection pool instrumented with the tracing hook.
func NewPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("app: connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: ping database: %w", err)
	}
	return pool, nil
}

// NewRedis connects a go-redis client with otel instrumentation.
func NewRedis(ctx context.Context, redisURL string, logger zerolog.Logger, metrics bool) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("app: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("app: ping redis: %w", err)
	}
	return client, nil
}

// AsynqRedisOpt converts a Redis URL into the asynq connection options.
func AsynqRedisOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("app: parse redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}

// RateLimiter builds a redis-backed fixed-window rate limit middleware keyed
// by authenticated user when available, falling back to the client IP.
func RateLimiter(rdb *redis.Client, perMinute int, prefix string) (func(http.Handler) http.Handler, error) {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("app: limiter store: %w", err)
	}
	rate := limiter.Rate{Period: time.Minute, Limit: int64(perMinute)}
	instance := limiter.New(store, rate)
	middleware := mhttp.NewMiddleware(instance, mhttp.WithKeyGetter(func(r *http.Request) string {
		if userID, ok := common.UserID(r.Context()); ok && userID != "" {
			return "u:" + userID
		}
		return "ip:" + common.ClientIP(r)
	}))
	return middleware.Handler, nil
}
