package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/taskforge-ai/taskforge/internal/agent"
	"github.com/taskforge-ai/taskforge/internal/breaker"
	"github.com/taskforge-ai/taskforge/internal/config"
	"github.com/taskforge-ai/taskforge/internal/decompose"
	"github.com/taskforge-ai/taskforge/internal/dispatch"
	"github.com/taskforge-ai/taskforge/internal/eventbus"
	"github.com/taskforge-ai/taskforge/internal/identity"
	"github.com/taskforge-ai/taskforge/internal/llm"
	"github.com/taskforge-ai/taskforge/internal/pushnotification"
	pushsubrepo "github.com/taskforge-ai/taskforge/internal/pushsubscription/repositoryimpl"
	taskrepo "github.com/taskforge-ai/taskforge/internal/task/repositoryimpl"
	"github.com/taskforge-ai/taskforge/pkg/clog"
	"github.com/taskforge-ai/taskforge/pkg/panicerr"
	"github.com/taskforge-ai/taskforge/pkg/storage"

	server "github.com/taskforge-ai/taskforge/internal"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	// Setup event bus and repositories
	bus := eventbus.New()
	taskRepo := taskrepo.NewYAMLRepository(store)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	// Setup agent registry and dispatcher
	registryEnv := config.RegistryEnvFromEnv(env)
	registry := agent.NewRegistry(agent.RegistryConfig{
		HealthCheckInterval: registryEnv.HealthCheckInterval,
		OfflineThreshold:    registryEnv.OfflineThreshold,
	}, bus)
	dispatcher := dispatch.NewDispatcher(registry, bus)

	// Setup decomposition engine
	engineEnv := config.EngineEnvFromEnv(env)
	breakerEnv := config.BreakerEnvFromEnv(env)
	client := llm.NewClaudeClient(".", engineEnv.CallTimeout)
	brk := breaker.New(breaker.Config{
		MaxAttempts: breakerEnv.MaxAttempts,
		MaxFailures: breakerEnv.MaxFailures,
		Cooldown:    breakerEnv.Cooldown,
	})
	engine := decompose.NewEngine(decompose.Config{
		MaxDepth:       engineEnv.MaxDepth,
		MinConfidence:  engineEnv.MinConfidence,
		MaxRetries:     engineEnv.MaxRetries,
		EpicTimeBudget: engineEnv.EpicTimeBudget,
	}, decompose.NewLLMOracle(client), client, brk, identity.NewULIDGenerator(""), bus)

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushService := pushnotification.NewService(vapidEnv, pushSubRepo, pushSender)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	srv := server.NewServer(env, engine, registry, dispatcher, taskRepo, pushService, bus)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		if err := panicerr.SafeContext(func(ctx context.Context) error {
			registry.Start(ctx)
			return nil
		})(ctx); err != nil {
			slog.Error("health checker crashed", "error", err)
		}
	})
	wg.Go(func() {
		if err := panicerr.SafeContext(func(ctx context.Context) error {
			pushDispatcher.Start(ctx)
			return nil
		})(ctx); err != nil {
			slog.Error("push dispatcher crashed", "error", err)
		}
	})
	wg.Go(func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	})

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after stream contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wg.Wait()
}
