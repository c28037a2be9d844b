package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exec/internal/config"
	"github.com/noah-isme/gema-exec/internal/database"
	"github.com/noah-isme/gema-exec/internal/engine"
	"github.com/noah-isme/gema-exec/internal/handler"
	"github.com/noah-isme/gema-exec/internal/middleware"
	"github.com/noah-isme/gema-exec/internal/ratelimit"
	"github.com/noah-isme/gema-exec/internal/router"
	"github.com/noah-isme/gema-exec/internal/storage"
	"github.com/noah-isme/gema-exec/internal/submission"
	"github.com/noah-isme/gema-exec/pkg/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	rootCtx, stopCounters := context.WithCancel(context.Background())
	defer stopCounters()

	runner, err := buildRunner(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build runner: %v", err)
	}

	if err := os.MkdirAll(cfg.WorkspaceRoot, 0o755); err != nil {
		log.Fatalf("failed to create workspace root: %v", err)
	}

	executor := sandbox.New(runner, sandbox.Config{
		WorkspaceRoot: cfg.WorkspaceRoot,
		Logger:        logger,
	})

	counter, err := buildCounter(rootCtx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build usage counter: %v", err)
	}
	limiter := ratelimit.New(counter)

	validate := validator.New(validator.WithRequiredStructEnabled())

	provider := engine.NewLocal(executor, limiter, validate, engine.LocalConfig{
		WorkspaceRoot:   cfg.WorkspaceRoot,
		TestConcurrency: cfg.TestConcurrency,
		AsyncResultTTL:  cfg.AsyncResultTTL,
		Logger:          logger,
	})

	store, err := buildStore(rootCtx, cfg)
	if err != nil {
		log.Fatalf("failed to build submission store: %v", err)
	}

	submissionService := submission.NewService(provider, store, logger)

	engineHandler := handler.NewEngineHandler(provider, validate, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, store, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		Provider:          provider,
		EngineHandler:     engineHandler,
		SubmissionHandler: submissionHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().
		Str("addr", cfg.HTTPAddress()).
		Str("runner", cfg.RunnerBackend).
		Msg("execution engine started")

	waitForShutdown(app)
}

func buildRunner(cfg config.Config, logger zerolog.Logger) (sandbox.Runner, error) {
	if cfg.RunnerBackend == config.RunnerDocker {
		return sandbox.NewDockerRunner(sandbox.DockerConfig{
			Host:   cfg.DockerHost,
			Logger: logger,
		})
	}
	return sandbox.NewHostRunner(), nil
}

func buildCounter(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ratelimit.Counter, error) {
	if cfg.RedisURL == "" {
		counter := ratelimit.NewMemoryCounter(logger)
		counter.StartSweeping(ctx)
		return counter, nil
	}

	client, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewRedisCounter(client), nil
}

func buildStore(ctx context.Context, cfg config.Config) (submission.Store, error) {
	if cfg.DatabaseURL == "" {
		return submission.NewMemoryStore(), nil
	}

	db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return storage.NewGormStore(db)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
