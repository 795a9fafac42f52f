package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type Repo struct {
	db *sql.DB
	q  queries
}

func New(db *sql.DB, reviewsTable, votesTable string) *Repo {
	return &Repo{db: db, q: newQueries(reviewsTable, votesTable)}
}

type scanner interface{ Scan(dest ...any) error }

func scanReview(s scanner) (domain.Review, error) {
	var (
		r        domain.Review
		imageURL sql.NullString
		category string
		status   string
	)
	if err := s.Scan(&r.ID, &r.Title, &r.Body, &category, &r.Rating, &imageURL,
		&r.AuthorID, &status, &r.Likes, &r.Dislikes, &r.CreatedAt); err != nil {
		return domain.Review{}, err
	}
	r.Category = domain.Category(category)
	r.Status = domain.Status(status)
	r.ImageURL = imageURL.String
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (r *Repo) ListReviews(ctx context.Context, status domain.Status) ([]domain.Review, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.db.QueryContext(ctx, r.q.listAll)
	} else {
		rows, err = r.db.QueryContext(ctx, r.q.listByStatus, string(status))
	}
	if err != nil {
		return nil, errors.Wrap(err, "mysql list reviews")
	}
	defer rows.Close()

	out := make([]domain.Review, 0, 64)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, errors.Wrap(err, "mysql scan review")
		}
		out = append(out, rv)
	}
	return out, errors.Wrap(rows.Err(), "mysql list reviews")
}

func (r *Repo) GetReview(ctx context.Context, id string) (domain.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, r.q.get, id))
	if err == sql.ErrNoRows {
		return domain.Review{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, errors.Wrapf(err, "mysql get review %s", id)
	}
	return rv, nil
}

func (r *Repo) CreateReview(ctx context.Context, rv domain.Review) (domain.Review, error) {
	if rv.ID == "" {
		rv.ID = uuid.NewString()
	}
	if rv.Status == "" {
		rv.Status = domain.StatusApproved
	}
	if rv.CreatedAt.IsZero() {
		rv.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	_, err := r.db.ExecContext(ctx, r.q.insert,
		rv.ID, rv.Title, rv.Body, string(rv.Category), rv.Rating, valStr(rv.ImageURL),
		rv.AuthorID, string(rv.Status), rv.Likes, rv.Dislikes, rv.CreatedAt)
	if err != nil {
		return domain.Review{}, errors.Wrap(err, "mysql insert review")
	}
	return rv, nil
}

func (r *Repo) UpdateReview(ctx context.Context, id string, p domain.ReviewPatch) error {
	res, err := r.db.ExecContext(ctx, r.q.update,
		p.Title, p.Body, string(p.Category), p.Rating, valStr(p.ImageURL), id)
	if err != nil {
		return errors.Wrapf(err, "mysql update review %s", id)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// MySQL reports 0 affected rows when nothing changed
	var one int
	if err := r.db.QueryRowContext(ctx, r.q.exists, id).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return errors.Wrapf(err, "mysql update review %s", id)
	}
	return nil
}

func (r *Repo) DeleteReview(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.q.deleteVotes, id); err != nil {
			return errors.Wrapf(err, "mysql delete votes %s", id)
		}
		res, err := tx.ExecContext(ctx, r.q.deleteReview, id)
		if err != nil {
			return errors.Wrapf(err, "mysql delete review %s", id)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// CastVote locks the review row, upserts the voter's row and moves the
// counters with relative updates, all in one transaction.
func (r *Repo) CastVote(ctx context.Context, v domain.Vote) (domain.VoteOutcome, error) {
	var out domain.VoteOutcome
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		out = domain.VoteOutcome{Current: v.Kind}

		var cur domain.Tally
		if err := tx.QueryRowContext(ctx, r.q.lockTally, v.ReviewID).Scan(&cur.Likes, &cur.Dislikes); err != nil {
			if err == sql.ErrNoRows {
				return domain.ErrNotFound
			}
			return errors.Wrap(err, "mysql lock review")
		}

		var prev string
		switch err := tx.QueryRowContext(ctx, r.q.getVote, v.ReviewID, v.VoterID).Scan(&prev); {
		case err == sql.ErrNoRows:
		case err != nil:
			return errors.Wrap(err, "mysql get vote")
		}
		out.Previous = domain.VoteKind(prev)
		if out.Previous == v.Kind {
			out.Tally = cur
			return nil
		}

		if _, err := tx.ExecContext(ctx, r.q.upsertVote, uuid.NewString(), v.ReviewID, v.VoterID, string(v.Kind)); err != nil {
			return errors.Wrap(err, "mysql upsert vote")
		}
		dl, dd := delta(out.Previous, v.Kind)
		if _, err := tx.ExecContext(ctx, r.q.bumpTally, dl, dd, v.ReviewID); err != nil {
			return errors.Wrap(err, "mysql bump tally")
		}
		out.Tally = cur.Apply(out.Previous, v.Kind)
		out.Changed = true
		return nil
	})
	return out, err
}

func (r *Repo) RecountVotes(ctx context.Context, id string) (domain.Tally, domain.Tally, error) {
	var before, after domain.Tally
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, r.q.lockTally, id).Scan(&before.Likes, &before.Dislikes); err != nil {
			if err == sql.ErrNoRows {
				return domain.ErrNotFound
			}
			return errors.Wrap(err, "mysql lock review")
		}
		if err := tx.QueryRowContext(ctx, r.q.countVotes, id).Scan(&after.Likes, &after.Dislikes); err != nil {
			return errors.Wrap(err, "mysql count votes")
		}
		if before == after {
			return nil
		}
		_, err := tx.ExecContext(ctx, r.q.setTally, after.Likes, after.Dislikes, id)
		return errors.Wrap(err, "mysql set tally")
	})
	return before, after, err
}

func (r *Repo) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "mysql begin")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "mysql commit")
}

// delta is the counter movement for one voter going from prev to next.
func delta(prev, next domain.VoteKind) (likes, dislikes int) {
	switch prev {
	case domain.VoteLike:
		likes--
	case domain.VoteDislike:
		dislikes--
	}
	switch next {
	case domain.VoteLike:
		likes++
	case domain.VoteDislike:
		dislikes++
	}
	return likes, dislikes
}

var _ domain.ReviewStore = (*Repo)(nil)
