package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/legalcode-service/internal/app"
	"github.com/user/legalcode-service/internal/delivery/http/handler"
	"github.com/user/legalcode-service/internal/delivery/http/router"
	"github.com/user/legalcode-service/internal/usecase"
	"github.com/user/legalcode-service/pkg/config"
	"github.com/user/legalcode-service/pkg/logger"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}

	// --- Logger ---
	log := logger.Must(cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	log.Info("Logger initialized", zap.String("level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Pipeline ---
	pipeline, err := app.New(ctx, ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(pipeline.Runs, pipeline.Checks, log)
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // wait=true runs hold the response open
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.Schedule > 0 {
		g.Go(func() error {
			schedule(gctx, pipeline.Runs, cfg.Schedule, log)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
	}
	pipeline.Runs.Wait()
	log.Info("Server stopped")
}

// schedule starts a run every interval, skipping ticks that land while a
// run is still going.
func schedule(ctx context.Context, runs usecase.RunManager, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info("Scheduled runs enabled", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id, err := runs.Start(ctx)
			switch {
			case errors.Is(err, usecase.ErrRunInProgress):
				log.Info("Skipping scheduled run; previous run still in progress")
			case err != nil:
				log.Error("Failed to start scheduled run", zap.Error(err))
			default:
				log.Info("Scheduled run started", zap.String("run_id", id))
			}
		}
	}
}
