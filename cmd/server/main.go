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

	"github.com/centrifugal/centrifuge"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/H0onnn/InvokeAI/internal/adapter/eventpublisher"
	"github.com/H0onnn/InvokeAI/internal/adapter/httpserver"
	"github.com/H0onnn/InvokeAI/internal/adapter/metaapi"
	"github.com/H0onnn/InvokeAI/internal/adapter/postgres"
	"github.com/H0onnn/InvokeAI/internal/adapter/queueapi"
	"github.com/H0onnn/InvokeAI/internal/adapter/redis"
	"github.com/H0onnn/InvokeAI/internal/adapter/socket"
	"github.com/H0onnn/InvokeAI/internal/adapter/websocket"
	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/effect"
	"github.com/H0onnn/InvokeAI/internal/platform/config"
	"github.com/H0onnn/InvokeAI/internal/platform/logging"
	"github.com/H0onnn/InvokeAI/internal/state"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
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

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupNode(cfg *config.Config) (*centrifuge.Node, http.Handler) {
	node, err := websocket.NewNode(cfg.LogLevel)
	if err != nil {
		slog.Error("Failed to create UI push node", "error", err)
		os.Exit(1)
	}
	if err := node.Run(); err != nil {
		slog.Error("Failed to run UI push node", "error", err)
		os.Exit(1)
	}

	wsHandler := centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{
		CheckOrigin: websocket.NewCheckOrigin(cfg.AppURL, cfg.AppEnv != "production"),
	})
	return node, wsHandler
}

func runGracefulShutdown(srv *httpserver.Server, node *centrifuge.Node, cancel context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if err := node.Shutdown(shutdownCtx); err != nil {
			slog.Error("UI push node shutdown error", "error", err)
		}

		// Stop the effect runner, event bridge, and push channel listener.
		cancel()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	presetRepo := postgres.NewPresetRepo(pool)

	queueClient := queueapi.New(cfg.InvokeAPIURL, cfg.QueueID, clock)
	metaClient := metaapi.New(cfg.InvokeAPIURL, clock)

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}

	// Descriptor cache is optional; without Redis every reconcile fetches
	// from the backend directly.
	var imageClient domain.ImageClient = queueClient
	if cfg.RedisURL != "" {
		redisClient := setupRedis(cfg)
		defer func() { _ = redisClient.Close() }()
		imageClient = redis.NewImageDTOCache(redisClient, queueClient, cfg.ImageDTOCacheTTL)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	store := state.NewStore()

	listener := socket.NewListener(cfg.InvokeSocketURL, clock)
	listener.OnReconnect(metaClient.RefreshTags)

	preprocessor := effect.NewPreprocessor(store, queueClient, imageClient, listener, clock, effect.Config{
		QuietPeriod:       cfg.QuietPeriod,
		CompletionTimeout: cfg.CompletionTimeout,
	})
	runner := effect.NewRunner(store, preprocessor)

	node, wsHandler := setupNode(cfg)
	bridge := eventpublisher.New(store, websocket.NewPublisher(node))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)
	go runner.Run(ctx)
	go bridge.Run(ctx)

	srv := httpserver.NewServer(cfg, store, presetRepo, metaClient, wsHandler, healthChecks)

	done := runGracefulShutdown(srv, node, cancel)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
