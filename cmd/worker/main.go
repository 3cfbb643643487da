package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"agrinix/internal/bootstrap"
	"agrinix/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("worker: failed to open store")
	}
	defer store.Close()

	pool, err := bootstrap.WorkerPool(cfg, store, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pipeline")
	}

	logger.Info().
		Str("driver", cfg.StoreDriver).
		Bool("cloudinary", cfg.HasCloudinary()).
		Msg("worker: pipeline configured")
	if err := pool.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
}
