package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/dbakare/gromart/internal/infrastructure/config"
	"github.com/dbakare/gromart/internal/infrastructure/observability"
	infraRedis "github.com/dbakare/gromart/internal/infrastructure/redis"
	"github.com/dbakare/gromart/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the shared process dependencies: config, logger, Postgres pool,
// Redis client and Prometheus metrics. Both the API and the worker build one
// in main and wire their own services on top of it.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

// New loads config and brings up the shared infrastructure in dependency
// order. Postgres and Redis failures abort startup; a tracer failure only
// logs, since the pipeline runs fine without spans.
func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().
		Str("service", serviceName).
		Str("instance", cfg.InstanceID).
		Msg("starting")

	if cfg.Observability.EnableTracing {
		initTracing(ctx, serviceName, cfg.Observability.JaegerEndpoint, logger)
	}

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Str("host", cfg.Database.Host).Msg("postgres connected")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("redis connected")

	return &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: observability.NewMetrics(metricsNamespace, nil),
	}, nil
}

func initTracing(ctx context.Context, serviceName, endpoint string, logger zerolog.Logger) {
	tp, err := observability.InitTracer(serviceName, endpoint)
	if err != nil {
		logger.Warn().Err(err).Msg("tracer init failed, continuing without tracing")
		return
	}

	go func() {
		<-ctx.Done()
		observability.Shutdown(context.Background(), tp)
	}()
	logger.Info().Str("endpoint", endpoint).Msg("tracing enabled")
}

// Close releases Redis before Postgres, the reverse of startup order.
func (a *App) Close() {
	a.Redis.Close()
	a.Pool.Close()
}
