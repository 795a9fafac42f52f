package postgrest

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

const (
	reviewColumns = "id,title,review,category,rating,image_url,author_id,status,likes,dislikes,created_at"
	voteColumns   = "id,review_id,user_ip,vote_type"
)

// ListReviews reads reviews and the vote set concurrently; likes and
// dislikes come from the votes, not the mirrored counters.
func (c *Client) ListReviews(ctx context.Context, status domain.Status) ([]domain.Review, error) {
	var (
		rows  []reviewRow
		votes []voteRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		f := filter{Select: reviewColumns, Order: "created_at.desc,id.asc"}
		if status != "" {
			f.Status = eq(string(status))
		}
		rows, err = fetchAll[reviewRow](gctx, c, call{op: "list_reviews", method: http.MethodGet, table: c.reviews, filter: f})
		return err
	})
	g.Go(func() (err error) {
		votes, err = fetchAll[voteRow](gctx, c, call{op: "list_votes", method: http.MethodGet, table: c.votes,
			filter: filter{Select: "review_id,vote_type", Order: "id.asc"}})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counted := tallies(votes)
	out := make([]domain.Review, 0, len(rows))
	for _, row := range rows {
		r := row.toDomain()
		t := counted[r.ID]
		r.Likes, r.Dislikes = t.Likes, t.Dislikes
		out = append(out, r)
	}
	return out, nil
}

func (c *Client) GetReview(ctx context.Context, id string) (domain.Review, error) {
	var (
		r     domain.Review
		votes []domain.Vote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		r, err = c.fetchReview(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		votes, err = c.fetchVotes(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Review{}, err
	}
	t := domain.Count(votes)
	r.Likes, r.Dislikes = t.Likes, t.Dislikes
	return r, nil
}

// fetchReview returns the stored row, counters as written.
func (c *Client) fetchReview(ctx context.Context, id string) (domain.Review, error) {
	var rows []reviewRow
	err := c.do(ctx, call{op: "get_review", method: http.MethodGet, table: c.reviews,
		filter: filter{Select: reviewColumns, ID: eq(id), Limit: 1}, out: &rows})
	if err != nil {
		return domain.Review{}, err
	}
	if len(rows) == 0 {
		return domain.Review{}, errors.Wrapf(domain.ErrNotFound, "review %s", id)
	}
	return rows[0].toDomain(), nil
}

func (c *Client) fetchVotes(ctx context.Context, reviewID string) ([]domain.Vote, error) {
	rows, err := fetchAll[voteRow](ctx, c, call{op: "list_votes", method: http.MethodGet, table: c.votes,
		filter: filter{Select: voteColumns, ReviewID: eq(reviewID), Order: "id.asc"}})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Vote, 0, len(rows))
	for _, v := range rows {
		out = append(out, v.toDomain())
	}
	return out, nil
}

func (c *Client) CreateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	if r.Status == "" {
		r.Status = domain.StatusApproved
	}
	body := insertReview{
		Title:    r.Title,
		Review:   r.Body,
		Category: string(r.Category),
		Rating:   r.Rating,
		ImageURL: nullable(r.ImageURL),
		AuthorID: r.AuthorID,
		Status:   string(r.Status),
		Likes:    r.Likes,
		Dislikes: r.Dislikes,
	}
	var rows []reviewRow
	err := c.do(ctx, call{op: "create_review", method: http.MethodPost, table: c.reviews,
		filter: filter{Select: reviewColumns}, body: body, prefer: "return=representation", out: &rows})
	if err != nil {
		return domain.Review{}, err
	}
	if len(rows) == 0 {
		return domain.Review{}, errors.Wrap(domain.ErrBackend, "create review: empty representation")
	}
	return rows[0].toDomain(), nil
}

func (c *Client) UpdateReview(ctx context.Context, id string, p domain.ReviewPatch) error {
	body := patchReview{
		Title:    p.Title,
		Review:   p.Body,
		Category: string(p.Category),
		Rating:   p.Rating,
		ImageURL: nullable(p.ImageURL),
	}
	var rows []reviewRow
	err := c.do(ctx, call{op: "update_review", method: http.MethodPatch, table: c.reviews,
		filter: filter{ID: eq(id), Select: "id"}, body: body, prefer: "return=representation", out: &rows})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.Wrapf(domain.ErrNotFound, "review %s", id)
	}
	return nil
}

// DeleteReview removes the vote rows first so tables without a cascading
// foreign key end up consistent too.
func (c *Client) DeleteReview(ctx context.Context, id string) error {
	if err := c.do(ctx, call{op: "delete_votes", method: http.MethodDelete, table: c.votes,
		filter: filter{ReviewID: eq(id)}}); err != nil {
		return err
	}
	var rows []reviewRow
	err := c.do(ctx, call{op: "delete_review", method: http.MethodDelete, table: c.reviews,
		filter: filter{ID: eq(id), Select: "id"}, prefer: "return=representation", out: &rows})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.Wrapf(domain.ErrNotFound, "review %s", id)
	}
	return nil
}

// CastVote upserts on the (review_id, user_ip) unique key, so concurrent
// casts from one voter leave a single row. The tally is recounted from the
// vote set and mirrored onto the review row.
func (c *Client) CastVote(ctx context.Context, v domain.Vote) (domain.VoteOutcome, error) {
	var (
		existing []voteRow
		review   domain.Review
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		review, err = c.fetchReview(gctx, v.ReviewID)
		return err
	})
	g.Go(func() error {
		return c.do(gctx, call{op: "get_vote", method: http.MethodGet, table: c.votes,
			filter: filter{Select: voteColumns, ReviewID: eq(v.ReviewID), UserIP: eq(v.VoterID), Limit: 1}, out: &existing})
	})
	if err := g.Wait(); err != nil {
		return domain.VoteOutcome{}, err
	}

	out := domain.VoteOutcome{Current: v.Kind}
	if len(existing) > 0 {
		out.Previous = domain.VoteKind(existing[0].VoteType)
	}
	if out.Previous == v.Kind {
		votes, err := c.fetchVotes(ctx, v.ReviewID)
		if err != nil {
			return domain.VoteOutcome{}, err
		}
		out.Tally = domain.Count(votes)
		return out, nil
	}

	err := c.do(ctx, call{op: "upsert_vote", method: http.MethodPost, table: c.votes,
		filter: filter{OnConflict: "review_id,user_ip"},
		body:   upsertVote{ReviewID: reviewKey(v.ReviewID), UserIP: v.VoterID, VoteType: string(v.Kind)},
		prefer: "resolution=merge-duplicates,return=minimal"})
	if err != nil {
		return domain.VoteOutcome{}, err
	}
	out.Changed = true

	votes, err := c.fetchVotes(ctx, v.ReviewID)
	if err != nil {
		return domain.VoteOutcome{}, err
	}
	out.Tally = domain.Count(votes)

	if out.Tally != review.Tally() {
		if err := c.writeTally(ctx, v.ReviewID, out.Tally); err != nil {
			log.Warn().Err(err).Str("review_id", v.ReviewID).Msg("mirror vote counters failed")
		}
	}
	return out, nil
}

func (c *Client) RecountVotes(ctx context.Context, id string) (domain.Tally, domain.Tally, error) {
	r, err := c.fetchReview(ctx, id)
	if err != nil {
		return domain.Tally{}, domain.Tally{}, err
	}
	votes, err := c.fetchVotes(ctx, id)
	if err != nil {
		return domain.Tally{}, domain.Tally{}, err
	}
	before, after := r.Tally(), domain.Count(votes)
	if before != after {
		if err := c.writeTally(ctx, id, after); err != nil {
			return before, before, err
		}
	}
	return before, after, nil
}

func (c *Client) writeTally(ctx context.Context, id string, t domain.Tally) error {
	return c.do(ctx, call{op: "write_tally", method: http.MethodPatch, table: c.reviews,
		filter: filter{ID: eq(id)}, body: patchTally{Likes: t.Likes, Dislikes: t.Dislikes}, prefer: "return=minimal"})
}

var _ domain.ReviewStore = (*Client)(nil)
