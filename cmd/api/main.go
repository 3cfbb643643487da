package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"agrinix/internal/bootstrap"
	"agrinix/internal/http/handlers"
	httpapi "agrinix/internal/http/httpapi"
	"agrinix/internal/infra"
	"agrinix/internal/infra/geoip"
	"agrinix/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel).With().Str("service", "api").Logger()
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("api: JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("api: failed to open store")
	}
	defer store.Close()

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	}
	defer resolver.Close()

	q, err := queue.New(queue.Options{
		Jobs:          store.Jobs,
		Owners:        store.Records,
		MaxImageBytes: cfg.MaxImageBytes,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build queue")
	}

	chain, err := bootstrap.EnrichmentChain(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build enrichment chain")
	}

	app := &handlers.App{
		Config:   cfg,
		Logger:   logger,
		Queue:    q,
		Tracker:  queue.NewTracker(store.Jobs, 0),
		Store:    store,
		GeoIP:    resolver,
		Diseases: chain,
		Advisor:  bootstrap.OpenRouter(cfg, &http.Client{Timeout: cfg.EnrichmentTimeout + 5*time.Second}),
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app), logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: http server failed")
	}
	logger.Info().Msg("api: stopped")
}
