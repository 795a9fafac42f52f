// Package memory is an in-process ReviewStore for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

type voteKey struct{ review, voter string }

type Store struct {
	mu      sync.Mutex
	reviews map[string]domain.Review
	votes   map[voteKey]domain.Vote
	seq     int64
	now     func() time.Time
}

func New() *Store {
	return &Store{
		reviews: map[string]domain.Review{},
		votes:   map[voteKey]domain.Vote{},
		now:     time.Now,
	}
}

// WithClock replaces the clock used to stamp created_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) ListReviews(ctx context.Context, status domain.Status) ([]domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Review, 0, len(s.reviews))
	for _, r := range s.reviews {
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetReview(ctx context.Context, id string) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *Store) CreateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = domain.StatusApproved
	}
	if r.CreatedAt.IsZero() {
		// strictly increasing so ordering is deterministic under a frozen clock
		s.seq++
		r.CreatedAt = s.now().UTC().Add(time.Duration(s.seq) * time.Microsecond)
	}
	s.reviews[r.ID] = r
	return r, nil
}

func (s *Store) UpdateReview(ctx context.Context, id string, p domain.ReviewPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Title, r.Body, r.Category, r.Rating, r.ImageURL = p.Title, p.Body, p.Category, p.Rating, p.ImageURL
	s.reviews[id] = r
	return nil
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.reviews, id)
	for k := range s.votes {
		if k.review == id {
			delete(s.votes, k)
		}
	}
	return nil
}

func (s *Store) CastVote(ctx context.Context, v domain.Vote) (domain.VoteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[v.ReviewID]
	if !ok {
		return domain.VoteOutcome{}, domain.ErrNotFound
	}
	k := voteKey{v.ReviewID, v.VoterID}
	prev, had := s.votes[k]
	out := domain.VoteOutcome{Current: v.Kind}
	if had {
		out.Previous = prev.Kind
		if prev.Kind == v.Kind {
			out.Tally = r.Tally()
			return out, nil
		}
		v.ID = prev.ID
	} else {
		v.ID = uuid.NewString()
	}
	s.votes[k] = v
	t := r.Tally().Apply(out.Previous, v.Kind)
	r.Likes, r.Dislikes = t.Likes, t.Dislikes
	s.reviews[r.ID] = r
	out.Changed = true
	out.Tally = t
	return out, nil
}

func (s *Store) RecountVotes(ctx context.Context, id string) (domain.Tally, domain.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return domain.Tally{}, domain.Tally{}, domain.ErrNotFound
	}
	var vs []domain.Vote
	for k, v := range s.votes {
		if k.review == id {
			vs = append(vs, v)
		}
	}
	before, after := r.Tally(), domain.Count(vs)
	r.Likes, r.Dislikes = after.Likes, after.Dislikes
	s.reviews[id] = r
	return before, after, nil
}

// Votes returns the vote rows for a review, for assertions.
func (s *Store) Votes(reviewID string) []domain.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Vote
	for k, v := range s.votes {
		if k.review == reviewID {
			out = append(out, v)
		}
	}
	return out
}

// Seed stores reviews as given, including counters, bypassing validation.
func (s *Store) Seed(rs ...domain.Review) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rs {
		s.reviews[r.ID] = r
	}
}
