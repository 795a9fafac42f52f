package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

const reviewCols = "id, title, review, category, rating, image_url, author_id, status, likes, dislikes, created_at"

type Store struct {
	db          *DB
	reviews     string // quoted identifiers
	votes       string
	reviewsName string
}

func NewStore(db *DB, reviewsTable, votesTable string) *Store {
	s := &Store{db: db, reviewsName: reviewsTable}
	s.reviews = s.ident(reviewsTable)
	s.votes = s.ident(votesTable)
	return s
}

func (s *Store) ident(name string) string { return pgx.Identifier{name}.Sanitize() }

// q substitutes the quoted table names.
func (s *Store) q(sql string) string {
	return strings.NewReplacer("{reviews}", s.reviews, "{votes}", s.votes).Replace(sql)
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var (
		r        domain.Review
		imageURL *string
		category string
		status   string
	)
	if err := row.Scan(&r.ID, &r.Title, &r.Body, &category, &r.Rating, &imageURL,
		&r.AuthorID, &status, &r.Likes, &r.Dislikes, &r.CreatedAt); err != nil {
		return domain.Review{}, err
	}
	r.Category = domain.Category(category)
	r.Status = domain.Status(status)
	if imageURL != nil {
		r.ImageURL = *imageURL
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Store) ListReviews(ctx context.Context, status domain.Status) ([]domain.Review, error) {
	sql := "SELECT " + reviewCols + " FROM {reviews} WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC, id"
	rows, err := s.db.pool.Query(ctx, s.q(sql), string(status))
	if err != nil {
		return nil, errors.Wrap(err, "postgres list reviews")
	}
	defer rows.Close()

	out := make([]domain.Review, 0, 64)
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres scan review")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "postgres list reviews")
}

func (s *Store) GetReview(ctx context.Context, id string) (domain.Review, error) {
	r, err := scanReview(s.db.pool.QueryRow(ctx, s.q("SELECT "+reviewCols+" FROM {reviews} WHERE id = $1"), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, errors.Wrapf(err, "postgres get review %s", id)
	}
	return r, nil
}

func (s *Store) CreateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = domain.StatusApproved
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	_, err := s.db.pool.Exec(ctx, s.q(`
INSERT INTO {reviews} (`+reviewCols+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`),
		r.ID, r.Title, r.Body, string(r.Category), r.Rating, nullable(r.ImageURL),
		r.AuthorID, string(r.Status), r.Likes, r.Dislikes, r.CreatedAt)
	if err != nil {
		return domain.Review{}, errors.Wrap(err, "postgres insert review")
	}
	return r, nil
}

func (s *Store) UpdateReview(ctx context.Context, id string, p domain.ReviewPatch) error {
	tag, err := s.db.pool.Exec(ctx, s.q(`
UPDATE {reviews}
SET title = $2, review = $3, category = $4, rating = $5, image_url = $6
WHERE id = $1`),
		id, p.Title, p.Body, string(p.Category), p.Rating, nullable(p.ImageURL))
	if err != nil {
		return errors.Wrapf(err, "postgres update review %s", id)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, s.q("DELETE FROM {votes} WHERE review_id = $1"), id); err != nil {
			return errors.Wrapf(err, "postgres delete votes %s", id)
		}
		tag, err := tx.Exec(ctx, s.q("DELETE FROM {reviews} WHERE id = $1"), id)
		if err != nil {
			return errors.Wrapf(err, "postgres delete review %s", id)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// CastVote locks the review row, upserts the voter's row on the unique key
// and applies relative counter updates in the same transaction.
func (s *Store) CastVote(ctx context.Context, v domain.Vote) (domain.VoteOutcome, error) {
	var out domain.VoteOutcome
	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		out = domain.VoteOutcome{Current: v.Kind}

		var cur domain.Tally
		err := tx.QueryRow(ctx, s.q("SELECT likes, dislikes FROM {reviews} WHERE id = $1 FOR UPDATE"), v.ReviewID).
			Scan(&cur.Likes, &cur.Dislikes)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "postgres lock review")
		}

		var prev string
		err = tx.QueryRow(ctx, s.q("SELECT vote_type FROM {votes} WHERE review_id = $1 AND user_ip = $2"), v.ReviewID, v.VoterID).
			Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrap(err, "postgres get vote")
		}
		out.Previous = domain.VoteKind(prev)
		if out.Previous == v.Kind {
			out.Tally = cur
			return nil
		}

		if _, err := tx.Exec(ctx, s.q(`
INSERT INTO {votes} (id, review_id, user_ip, vote_type)
VALUES ($1, $2, $3, $4)
ON CONFLICT (review_id, user_ip) DO UPDATE SET vote_type = EXCLUDED.vote_type`),
			uuid.NewString(), v.ReviewID, v.VoterID, string(v.Kind)); err != nil {
			return errors.Wrap(err, "postgres upsert vote")
		}

		next := cur.Apply(out.Previous, v.Kind)
		if _, err := tx.Exec(ctx, s.q(`
UPDATE {reviews}
SET likes = GREATEST(likes + $2, 0), dislikes = GREATEST(dislikes + $3, 0)
WHERE id = $1`),
			v.ReviewID, next.Likes-cur.Likes, next.Dislikes-cur.Dislikes); err != nil {
			return errors.Wrap(err, "postgres bump tally")
		}
		out.Tally = next
		out.Changed = true
		return nil
	})
	return out, err
}

func (s *Store) RecountVotes(ctx context.Context, id string) (domain.Tally, domain.Tally, error) {
	var before, after domain.Tally
	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, s.q("SELECT likes, dislikes FROM {reviews} WHERE id = $1 FOR UPDATE"), id).
			Scan(&before.Likes, &before.Dislikes)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "postgres lock review")
		}
		if err := tx.QueryRow(ctx, s.q(`
SELECT
  COUNT(*) FILTER (WHERE vote_type = 'like'),
  COUNT(*) FILTER (WHERE vote_type = 'dislike')
FROM {votes} WHERE review_id = $1`), id).Scan(&after.Likes, &after.Dislikes); err != nil {
			return errors.Wrap(err, "postgres count votes")
		}
		if before == after {
			return nil
		}
		_, err = tx.Exec(ctx, s.q("UPDATE {reviews} SET likes = $2, dislikes = $3 WHERE id = $1"), id, after.Likes, after.Dislikes)
		return errors.Wrap(err, "postgres set tally")
	})
	return before, after, err
}

var _ domain.ReviewStore = (*Store)(nil)
