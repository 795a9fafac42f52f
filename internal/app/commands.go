package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/access"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

// CommandService performs every write. Submit, Update and Delete need an
// unlocked session; Vote only needs the session's pseudo-identity.
type CommandService struct {
	store   domain.ReviewStore
	catalog *Catalog
	images  *ImageEncoder
}

func NewCommandService(s domain.ReviewStore, c *Catalog, img *ImageEncoder) *CommandService {
	if img == nil {
		img = NewImageEncoder(0, nil)
	}
	return &CommandService{store: s, catalog: c, images: img}
}

// Submit stores a new approved review authored by the session's identity.
// image may be nil.
func (s *CommandService) Submit(ctx context.Context, d domain.ReviewDraft, image []byte) (domain.Review, error) {
	sess, err := access.RequireCapability(ctx)
	if err != nil {
		return domain.Review{}, err
	}
	d, err = d.Normalize()
	if err != nil {
		return domain.Review{}, err
	}
	if len(image) > 0 {
		if d.ImageURL, err = s.images.Encode(ctx, image); err != nil {
			return domain.Review{}, err
		}
	}

	author := sess.BrowserID
	if author == "" {
		author = domain.AnonymousAuthor
	}
	created, err := s.store.CreateReview(ctx, domain.Review{
		Title:    d.Title,
		Body:     d.Body,
		Category: d.Category,
		Rating:   d.Rating,
		ImageURL: d.ImageURL,
		AuthorID: author,
		Status:   domain.StatusApproved,
	})
	if err != nil {
		log.Error().Err(err).Str("author", author).Msg("create review failed")
		return domain.Review{}, storeErr("create review", err)
	}
	log.Info().Str("review_id", created.ID).Str("author", author).Msg("review submitted")

	s.refresh(ctx)
	return created, nil
}

type UpdateInput struct {
	Draft       domain.ReviewDraft
	Image       []byte // replaces the current image when non-empty
	RemoveImage bool
}

// Update replaces the editable fields of a review. The current image is kept
// unless a new one is given or RemoveImage is set.
func (s *CommandService) Update(ctx context.Context, id string, in UpdateInput) (domain.Review, error) {
	if _, err := access.RequireCapability(ctx); err != nil {
		return domain.Review{}, err
	}
	d, err := in.Draft.Normalize()
	if err != nil {
		return domain.Review{}, err
	}
	cur, err := s.store.GetReview(ctx, id)
	if err != nil {
		return domain.Review{}, storeErr("get review", err)
	}

	switch {
	case len(in.Image) > 0:
		if d.ImageURL, err = s.images.Encode(ctx, in.Image); err != nil {
			return domain.Review{}, err
		}
	case in.RemoveImage:
		d.ImageURL = ""
	default:
		d.ImageURL = cur.ImageURL
	}

	if err := s.store.UpdateReview(ctx, id, d.Patch()); err != nil {
		log.Error().Err(err).Str("review_id", id).Msg("update review failed")
		return domain.Review{}, storeErr("update review", err)
	}
	log.Info().Str("review_id", id).Msg("review updated")

	cur.Title, cur.Body, cur.Category, cur.Rating, cur.ImageURL = d.Title, d.Body, d.Category, d.Rating, d.ImageURL
	s.refresh(ctx)
	return cur, nil
}

// Delete removes a review and its votes.
func (s *CommandService) Delete(ctx context.Context, id string) error {
	if _, err := access.RequireCapability(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteReview(ctx, id); err != nil {
		log.Error().Err(err).Str("review_id", id).Msg("delete review failed")
		return storeErr("delete review", err)
	}
	log.Info().Str("review_id", id).Msg("review deleted")

	s.refresh(ctx)
	return nil
}

// Vote records the session's like or dislike. Repeating the current vote
// returns an outcome with Changed=false and touches nothing.
func (s *CommandService) Vote(ctx context.Context, id string, kind domain.VoteKind) (domain.VoteOutcome, error) {
	sess, ok := access.FromContext(ctx)
	if !ok || sess.BrowserID == "" {
		return domain.VoteOutcome{}, fmt.Errorf("%w: no session identity", domain.ErrInvalid)
	}
	out, err := s.store.CastVote(ctx, domain.Vote{ReviewID: id, VoterID: sess.BrowserID, Kind: kind})
	if err != nil {
		log.Error().Err(err).Str("review_id", id).Str("voter", sess.BrowserID).Msg("cast vote failed")
		return domain.VoteOutcome{}, storeErr("cast vote", err)
	}
	if out.Changed {
		log.Debug().Str("review_id", id).Str("kind", string(kind)).Str("previous", string(out.Previous)).Msg("vote recorded")
		s.refresh(ctx)
	}
	return out, nil
}

// refresh runs after a successful write. A failed reload leaves the old
// snapshot in place; the write itself stands.
func (s *CommandService) refresh(ctx context.Context) {
	if s.catalog == nil {
		return
	}
	s.catalog.Invalidate(ctx)
	if err := s.catalog.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("snapshot reload after write failed")
	}
}

// storeErr passes through caller-facing errors and files everything else
// under ErrBackend.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalid) ||
		errors.Is(err, domain.ErrBackend) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrBackend, err)
}
