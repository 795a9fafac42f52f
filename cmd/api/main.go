package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/access"
	server "github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/http_server"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/observability"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/app"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/bootstrap"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/shared"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	store, closeStore, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("open review store failed")
	}
	defer closeStore()
	cache, closeCache := bootstrap.Cache(ctx, cfg)
	defer closeCache()

	gate, err := access.NewGate(cfg.AccessCode, cfg.SessionSecret, cfg.SessionTTL, cfg.CookieSecure)
	if err != nil {
		log.Fatal().Err(err).Msg("access gate init failed")
	}

	catalog := app.NewCatalog(store, cache, cfg.CacheTTL()).
		OnSwap(func(n int) { observability.SnapshotSize.Set(float64(n)) })
	if err := catalog.Refresh(ctx); err != nil {
		// serve an empty catalog; the ticker retries
		log.Error().Err(err).Msg("initial review load failed")
	}
	go catalog.RefreshEvery(ctx, cfg.CacheTTL())

	commands := app.NewCommandService(store, catalog, app.NewImageEncoder(cfg.MaxImageBytes, bootstrap.Images(cfg)))

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Catalog:       catalog,
		Commands:      commands,
		Gate:          gate,
		MaxImageBytes: cfg.MaxImageBytes,
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("backend", cfg.Backend).Int("reviews", catalog.Len()).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
