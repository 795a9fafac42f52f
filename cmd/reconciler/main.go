package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/observability"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/app"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/bootstrap"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("backend", cfg.Backend).
		Int("workers", cfg.ReconcileWorkers).
		Msg("reconciler starting")

	store, closeStore, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open review store failed")
	}
	defer closeStore()

	rep, err := app.NewReconciler(store, cfg.ReconcileWorkers).Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile interrupted")
	}

	// cached snapshots still hold the old counters
	if rep.Fixed > 0 {
		if cache, closeCache := bootstrap.Cache(ctx, cfg); cache != nil {
			app.NewCatalog(store, cache, cfg.CacheTTL()).Invalidate(ctx)
			closeCache()
		}
	}

	if err != nil || rep.Failed > 0 {
		closeStore()
		os.Exit(1)
	}
}
