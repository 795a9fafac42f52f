// Package bootstrap builds the adapters selected by configuration.
package bootstrap

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/cloudinary"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/postgrest"
	redisad "github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/redis"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/shared"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/storage/memory"
	mysqlrepo "github.com/santosh7063/Metawatchlist-Reviews-5325/internal/storage/mysql"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/storage/postgres"
)

// Store opens the configured backend. The returned func releases it.
func Store(ctx context.Context, cfg shared.Config) (domain.ReviewStore, func(), error) {
	switch cfg.Backend {
	case shared.BackendREST:
		c, err := postgrest.New(postgrest.Options{
			BaseURL:      cfg.BackendURL,
			APIKey:       cfg.BackendKey,
			RPS:          cfg.BackendRPS,
			ReviewsTable: cfg.ReviewsTable,
			VotesTable:   cfg.VotesTable,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("url", cfg.BackendURL).Msg("using rest backend")
		return c, func() {}, nil

	case shared.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "sql.Open failed")
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, errors.Wrap(err, "db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		return mysqlrepo.New(db, cfg.ReviewsTable, cfg.VotesTable), func() { _ = db.Close() }, nil

	case shared.BackendPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.NewStore(db, cfg.ReviewsTable, cfg.VotesTable)
		if err := s.CreateSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Msg("database connection ok")
		return s, db.Close, nil

	case shared.BackendMemory:
		log.Warn().Msg("using in-memory backend, data is lost on restart")
		return memory.New(), func() {}, nil
	}
	return nil, nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

// Cache returns nil when REDIS_ADDR is unset; the catalog then works
// without a shared cache.
func Cache(ctx context.Context, cfg shared.Config) (domain.Cache, func()) {
	if cfg.RedisAddr == "" {
		return nil, func() {}
	}
	c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := c.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, continuing without cache")
		_ = c.Close()
		return nil, func() {}
	}
	return c, func() { _ = c.Close() }
}

// Images returns nil unless Cloudinary credentials are complete.
func Images(cfg shared.Config) domain.ImageStore {
	if !cfg.CloudinaryEnabled() {
		return nil
	}
	img, err := cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		log.Warn().Err(err).Msg("cloudinary disabled")
		return nil
	}
	return img
}
