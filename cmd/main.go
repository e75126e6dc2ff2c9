package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"renderwatch/internal/config"
	"renderwatch/internal/core/claim"
	"renderwatch/internal/core/exec"
	"renderwatch/internal/core/limiter"
	"renderwatch/internal/core/output"
	"renderwatch/internal/core/session"
	"renderwatch/internal/logger"
	"renderwatch/internal/platform/engine"
	"renderwatch/internal/server"
)

func main() {
	cfg := config.Load()
	log.Printf("[renderwatch] starting at %s (env=%s, concurrency=%d)\n", cfg.HTTPAddr, cfg.AppEnv, cfg.Concurrency)

	logr := logger.New("main")

	// One shared browser for the whole process.
	eng, err := engine.Launch()
	if err != nil {
		log.Fatal(err)
	}

	registry := session.NewRegistry(func(string) (engine.SessionContext, error) {
		return eng.NewContext(engine.ContextOptions{})
	})

	writer := output.NewWriter(cfg.OutputDir())
	executor := exec.NewExecutor(eng, registry, exec.Options{
		MaxPostLoadDelay: cfg.MaxPostLoadDelay(),
	})
	lim := limiter.New(cfg.Concurrency)

	claimer := claim.New(
		cfg.InboxDir(), cfg.ProcessingDir(),
		cfg.PollInterval(), cfg.StableFor(),
		lim, executor, writer,
	)
	if err := claimer.Run(context.Background()); err != nil {
		log.Fatalf("claim manager: %v", err)
	}

	app := fiber.New(fiber.Config{AppName: "Renderwatch"})
	app.Static("/files", cfg.OutputDir())
	deps := server.Dependencies{
		Engine:   eng,
		Limiter:  lim,
		Writer:   writer,
		InboxDir: cfg.InboxDir(),
	}
	healthHandler := server.RegisterRoutes(app, deps)
	healthHandler.SetReady()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-shutdown:
			logr.LogInfof("received %v, shutting down...", sig)
		case err := <-eng.Failed():
			// The shared engine is not per-job recoverable.
			logr.LogError("engine failure, shutting down", err)
		}

		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
		defer cancel()
		if err := claimer.Stop(drainCtx); err != nil {
			logr.LogWarnf("drain incomplete: %v", err)
		}
		registry.CloseAll()
		if err := eng.Close(); err != nil {
			logr.LogWarnf("engine close: %v", err)
		}
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
