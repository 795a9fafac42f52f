package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalid      = errors.New("invalid input")
	ErrAccessDenied = errors.New("access code required")
	ErrBackend      = errors.New("backend unavailable")
)

// ReviewStore is the system of record for reviews and votes.
type ReviewStore interface {
	// Read paths. ListReviews with an empty status returns every review.
	ListReviews(ctx context.Context, status Status) ([]Review, error)
	GetReview(ctx context.Context, id string) (Review, error)

	// Write paths
	CreateReview(ctx context.Context, r Review) (Review, error)
	UpdateReview(ctx context.Context, id string, p ReviewPatch) error
	DeleteReview(ctx context.Context, id string) error
	CastVote(ctx context.Context, v Vote) (VoteOutcome, error)

	// RecountVotes rewrites the stored counters from the vote set.
	RecountVotes(ctx context.Context, id string) (before, after Tally, err error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// ImageStore moves an encoded image somewhere durable and returns its URL.
type ImageStore interface {
	Put(ctx context.Context, dataURL string) (string, error)
}
