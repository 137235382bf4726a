package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/interview-engine/internal/api"
	"github.com/terra-clan/interview-engine/internal/catalog"
	"github.com/terra-clan/interview-engine/internal/cleanup"
	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/events"
	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/locks"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/runner"
	"github.com/terra-clan/interview-engine/internal/storage"
)

func main() {
	// A missing .env file is fine; real deployments use the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting interview-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"locks", cfg.Locks.Backend,
		"events", cfg.Events.Backend,
		"evaluator", cfg.Evaluator.Mode,
		"runner", cfg.Runner.Enabled,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	repo, err := openStore(initCtx, cfg)
	if err != nil {
		slog.Error("failed to open session store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if cfg.Bootstrap.ApiKey != "" {
		err := repo.CreateClient(initCtx, &models.ApiClient{
			Name:        "bootstrap",
			OwnerID:     cfg.Bootstrap.OwnerID,
			ApiKey:      cfg.Bootstrap.ApiKey,
			IsActive:    true,
			Permissions: []string{"*"},
		})
		if err != nil {
			slog.Error("failed to create bootstrap client", "error", err)
			os.Exit(1)
		}
		slog.Info("bootstrap client ready", "owner_id", cfg.Bootstrap.OwnerID, "key_prefix", models.MaskKey(cfg.Bootstrap.ApiKey))
	}

	// Redis backs distributed locks and cross-replica events when configured
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(initCtx).Err(); err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.Redis.Address, "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		slog.Info("redis connected", "addr", cfg.Redis.Address)
	}

	var locker locks.Locker
	switch cfg.Locks.Backend {
	case config.BackendRedis:
		locker = locks.NewRedis(rdb, cfg.Locks.TTL, cfg.Locks.WaitTimeout)
	default:
		locker = locks.NewLocal(cfg.Locks.WaitTimeout)
	}

	var broker events.Broker
	switch cfg.Events.Backend {
	case config.BackendRedis:
		broker = events.NewRedisBroker(rdb)
	default:
		memBroker := events.NewMemoryBroker()
		defer memBroker.Close()
		broker = memBroker
	}

	var publisher events.Publisher = broker
	if cfg.RabbitMQ.URL != "" {
		sink := events.NewRabbitSink(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		defer sink.Close()
		publisher = events.Multi{broker, sink}
		slog.Info("mirroring session events to rabbitmq", "queue", cfg.RabbitMQ.Queue)
	}

	// Load catalog
	cat, err := catalog.NewDefault()
	if err != nil {
		slog.Error("failed to load built-in catalog", "error", err)
		os.Exit(1)
	}
	if cfg.Catalog.Dir != "" {
		if err := cat.LoadFromDir(cfg.Catalog.Dir); err != nil {
			slog.Warn("failed to load catalog overlay", "dir", cfg.Catalog.Dir, "error", err)
		}
	}

	evaluator, closeEvaluator, err := buildEvaluator(initCtx, cfg)
	if err != nil {
		slog.Error("failed to create evaluator", "error", err)
		os.Exit(1)
	}
	defer closeEvaluator()

	engine := interview.NewEngine(repo, cat, evaluator,
		interview.WithLocker(locker),
		interview.WithPublisher(publisher),
		interview.WithMaxAnswerLength(cfg.Session.MaxAnswerLength),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start retention worker
	cleaner := cleanup.NewCleaner(engine, cfg.Cleanup.Interval, cfg.Cleanup.Retention)
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, engine, cat, broker, repo)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	cleaner.Wait()

	slog.Info("interview-engine stopped")
}

// openStore opens the configured session store, running migrations for postgres
func openStore(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
		})
		if err != nil {
			return nil, err
		}
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := storage.RunMigrations(ctx, repo.Pool(), cfg.Database.MigrationsDir); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("database connected successfully")
		return repo, nil

	case config.StoreDriverSQLite:
		repo, err := storage.NewSQLiteRepository(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("sqlite store opened", "path", cfg.SQLite.Path)
		return repo, nil

	default:
		slog.Warn("using in-memory session store, sessions are lost on restart")
		return storage.NewMemoryRepository(), nil
	}
}

// buildEvaluator picks the question grader and, when enabled, routes coding
// challenges to the container runner. The returned func releases the runner.
func buildEvaluator(ctx context.Context, cfg *config.Config) (interview.Evaluator, func(), error) {
	var base interview.Evaluator
	switch cfg.Evaluator.Mode {
	case config.EvaluatorReference:
		base = interview.NewReferenceEvaluator()
	default:
		base = interview.NewRandomEvaluator(cfg.Evaluator.Seed)
	}

	if !cfg.Runner.Enabled {
		return base, func() {}, nil
	}

	dockerRunner, err := runner.NewDockerRunner(runner.Config{
		Host:            cfg.Runner.DockerHost,
		PullPolicy:      cfg.Runner.PullPolicy,
		Timeout:         cfg.Runner.Timeout,
		MemoryMB:        int64(cfg.Runner.MemoryMB),
		DefaultLanguage: cfg.Runner.DefaultLanguage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create docker runner: %w", err)
	}
	if err := dockerRunner.Ping(ctx); err != nil {
		dockerRunner.Close()
		return nil, nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	slog.Info("coding challenges graded in containers", "languages", dockerRunner.SupportedLanguages())

	closeRunner := func() {
		if err := dockerRunner.Close(); err != nil {
			slog.Error("docker runner close error", "error", err)
		}
	}
	return &interview.Router{Questions: base, Challenges: dockerRunner}, closeRunner, nil
}
