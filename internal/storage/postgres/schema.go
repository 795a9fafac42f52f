package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS {reviews} (
  id          TEXT PRIMARY KEY,
  title       VARCHAR(120) NOT NULL,
  review      VARCHAR(280) NOT NULL,
  category    TEXT NOT NULL,
  rating      DOUBLE PRECISION NOT NULL DEFAULT 0,
  image_url   TEXT NULL,
  author_id   TEXT NOT NULL DEFAULT 'anonymous',
  status      TEXT NOT NULL DEFAULT 'approved',
  likes       INTEGER NOT NULL DEFAULT 0,
  dislikes    INTEGER NOT NULL DEFAULT 0,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS {reviews_idx} ON {reviews} (status, created_at DESC);

CREATE TABLE IF NOT EXISTS {votes} (
  id         TEXT PRIMARY KEY,
  review_id  TEXT NOT NULL REFERENCES {reviews} (id) ON DELETE CASCADE,
  user_ip    TEXT NOT NULL,
  vote_type  TEXT NOT NULL CHECK (vote_type IN ('like', 'dislike')),
  UNIQUE (review_id, user_ip)
);
`

// CreateSchema creates the two tables when missing.
func (s *Store) CreateSchema(ctx context.Context) error {
	ddl := strings.NewReplacer(
		"{reviews_idx}", s.ident(s.reviewsName+"_status_created_idx"),
		"{reviews}", s.reviews,
		"{votes}", s.votes,
	).Replace(schemaSQL)
	_, err := s.db.pool.Exec(ctx, ddl)
	return errors.Wrap(err, "postgres create schema")
}
