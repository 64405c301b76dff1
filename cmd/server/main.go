package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/darthbatman/TypeSense/internal/adapter/httpserver"
	"github.com/darthbatman/TypeSense/internal/adapter/metrics"
	"github.com/darthbatman/TypeSense/internal/adapter/postgres"
	"github.com/darthbatman/TypeSense/internal/adapter/redis"
	"github.com/darthbatman/TypeSense/internal/adapter/textanalytics"
	"github.com/darthbatman/TypeSense/internal/app"
	"github.com/darthbatman/TypeSense/internal/platform/config"
	"github.com/darthbatman/TypeSense/internal/platform/crypto"
	"github.com/darthbatman/TypeSense/internal/platform/logging"
	"github.com/darthbatman/TypeSense/internal/platform/version"
	"github.com/darthbatman/TypeSense/internal/sentiment"
)

const (
	startupTimeout         = 30 * time.Second
	shutdownTimeout        = 10 * time.Second
	scoreCacheEvictionTick = time.Minute
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config, m *metrics.DBMetrics) *pgxpool.Pool {
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(m))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupCrypto(cfg *config.Config) crypto.Service {
	svc, err := crypto.New(cfg.CredentialEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}
	if cfg.CredentialEncryptionKey == "" {
		slog.Warn("CREDENTIAL_ENCRYPTION_KEY not set, passwords are stored unencrypted")
	}
	return svc
}

func healthChecks(pool *pgxpool.Pool, rdb *goredis.Client, scorer *textanalytics.Client) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		{Name: "sentiment", Check: scorer.CheckBreaker, Optional: true},
	}
}

func runGracefulShutdown(srv *httpserver.Server, stopEviction func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopEviction()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	reg := metrics.NewRegistry()

	startupCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	pool := setupDB(startupCtx, cfg, metrics.NewDBMetrics(reg))
	defer pool.Close()

	redisClient := setupRedis(startupCtx, cfg, metrics.NewRedisMetrics(reg))
	defer func() { _ = redisClient.Close() }()

	scoringMetrics := metrics.NewScoringMetrics(reg)
	sentimentClient := textanalytics.NewClient(textanalytics.Config{
		Endpoint: cfg.SentimentEndpoint,
		APIKey:   cfg.SentimentAPIKey,
		Language: cfg.SentimentLanguage,
		Timeout:  cfg.SentimentTimeout,
	}, scoringMetrics)

	scoreCache := redis.NewScoreCache(redisClient, sentimentClient, cfg.ScoreCacheTTL, cfg.ScoreMemoryCacheTTL, clock, scoringMetrics)
	stopEviction := scoreCache.StartEvictionTimer(scoreCacheEvictionTick)

	appSvc := app.NewService(app.Deps{
		Accounts:      postgres.NewAccountRepo(pool, setupCrypto(cfg)),
		Connections:   postgres.NewConnectionRepo(pool),
		Conversations: postgres.NewConversationRepo(pool),
		Locker:        redis.NewConversationLock(redisClient, cfg.ConversationLockTTL, cfg.ConversationLockWait, clock),
		Calculator:    sentiment.NewCalculator(scoreCache),
		Clock:         clock,
		Metrics:       metrics.NewConversationMetrics(reg),
	})

	srv := httpserver.NewServer(cfg, appSvc,
		httpserver.WithMetrics(metrics.NewHTTPMetrics(reg), metrics.Handler(reg)),
		httpserver.WithHealthChecks(healthChecks(pool, redisClient, sentimentClient)...),
		httpserver.WithClock(clock),
	)

	done := runGracefulShutdown(srv, stopEviction)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
