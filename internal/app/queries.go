package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

const snapshotKey = "reviews:approved"

// Catalog keeps the approved reviews in memory, newest first, and answers
// every read from that snapshot. Only Refresh talks to the store.
type Catalog struct {
	store    domain.ReviewStore
	cache    domain.Cache
	cacheTTL time.Duration
	now      func() time.Time
	onSwap   func(n int)

	mu       sync.RWMutex
	reviews  []domain.Review
	loadedAt time.Time
}

// NewCatalog accepts a nil cache.
func NewCatalog(s domain.ReviewStore, c domain.Cache, ttl time.Duration) *Catalog {
	return &Catalog{store: s, cache: c, cacheTTL: ttl, now: time.Now}
}

// WithClock swaps the clock used for time windows.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

// OnSwap registers a callback that receives the size of each new snapshot.
func (c *Catalog) OnSwap(fn func(n int)) *Catalog {
	c.onSwap = fn
	return c
}

func (c *Catalog) Refresh(ctx context.Context) error {
	var rs []domain.Review
	if c.cache != nil {
		ok, err := c.cache.Get(ctx, snapshotKey, &rs)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot cache read failed")
		}
		if ok && err == nil {
			c.swap(rs)
			return nil
		}
	}

	rs, err := c.store.ListReviews(ctx, domain.StatusApproved)
	if err != nil {
		log.Error().Err(err).Msg("fetch approved reviews failed")
		return storeErr("list reviews", err)
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, snapshotKey, rs, int(c.cacheTTL.Seconds())); err != nil {
			log.Warn().Err(err).Msg("snapshot cache write failed")
		}
	}
	c.swap(rs)
	return nil
}

// Invalidate drops the shared cache entry so the next Refresh hits the store.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Del(ctx, snapshotKey); err != nil {
		log.Warn().Err(err).Msg("snapshot cache delete failed")
	}
}

// RefreshEvery re-fetches on a ticker until ctx is done.
func (c *Catalog) RefreshEvery(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("periodic refresh failed")
			}
		}
	}
}

func (c *Catalog) swap(rs []domain.Review) {
	cp := make([]domain.Review, len(rs))
	copy(cp, rs)
	c.mu.Lock()
	c.reviews = cp
	c.loadedAt = c.now()
	c.mu.Unlock()
	if c.onSwap != nil {
		c.onSwap(len(cp))
	}
}

// view returns the snapshot; callers must not mutate it.
func (c *Catalog) view() []domain.Review {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reviews
}

func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

func (c *Catalog) Len() int { return len(c.view()) }

func (c *Catalog) All() []domain.Review { return filter(c.view(), func(domain.Review) bool { return true }) }

func (c *Catalog) Get(id string) (domain.Review, bool) {
	for _, r := range c.view() {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Review{}, false
}

// Search matches title, body or author name case-insensitively. An empty
// query matches everything; CategoryAll never excludes.
func (c *Catalog) Search(query string, cat domain.Category) []domain.Review {
	q := strings.ToLower(strings.TrimSpace(query))
	return filter(c.view(), func(r domain.Review) bool {
		return inCategory(r, cat) && (q == "" ||
			strings.Contains(strings.ToLower(r.Title), q) ||
			strings.Contains(strings.ToLower(r.Body), q) ||
			strings.Contains(strings.ToLower(r.AuthorName()), q))
	})
}

func (c *Catalog) ByAuthor(authorID string) []domain.Review {
	return filter(c.view(), func(r domain.Review) bool { return r.AuthorID == authorID })
}

type Window string

const (
	WindowAll   Window = "all"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowYear  Window = "year"
)

func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case "", WindowAll:
		return WindowAll, nil
	case WindowWeek, WindowMonth, WindowYear:
		return w, nil
	}
	return "", fmt.Errorf("%w: window must be all, week, month or year", domain.ErrInvalid)
}

func (w Window) cutoff(now time.Time) time.Time {
	switch w {
	case WindowWeek:
		return now.AddDate(0, 0, -7)
	case WindowMonth:
		return now.AddDate(0, -1, 0)
	case WindowYear:
		return now.AddDate(-1, 0, 0)
	}
	return time.Time{}
}

type TopQuery struct {
	Category domain.Category
	Window   Window
	Limit    int // 0 means no limit
}

// Top orders by likes minus dislikes, descending. Ties keep snapshot order.
func (c *Catalog) Top(q TopQuery) []domain.Review {
	cutoff := q.Window.cutoff(c.now())
	out := filter(c.view(), func(r domain.Review) bool {
		return inCategory(r, q.Category) && !r.CreatedAt.Before(cutoff)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

type SiteStats struct {
	TotalReviews int `json:"total_reviews"`
	TotalVotes   int `json:"total_votes"`
	ActiveUsers  int `json:"active_users"`
}

// Stats mirrors the landing page numbers: votes are summed net scores and
// active users is an estimate of half the review count, rounded up.
func (c *Catalog) Stats() SiteStats {
	rs := c.view()
	st := SiteStats{TotalReviews: len(rs)}
	for _, r := range rs {
		st.TotalVotes += r.Score()
	}
	st.ActiveUsers = int(math.Ceil(float64(len(rs)) / 2))
	return st
}

type AuthorStats struct {
	AuthorID      string `json:"author_id"`
	Reviews       int    `json:"reviews"`
	VotesReceived int    `json:"votes_received"`
}

func (c *Catalog) AuthorStats(authorID string) AuthorStats {
	st := AuthorStats{AuthorID: authorID}
	for _, r := range c.ByAuthor(authorID) {
		st.Reviews++
		st.VotesReceived += r.Score()
	}
	return st
}

func inCategory(r domain.Review, cat domain.Category) bool {
	return cat == "" || cat == domain.CategoryAll || r.Category == cat
}

func filter(in []domain.Review, keep func(domain.Review) bool) []domain.Review {
	out := make([]domain.Review, 0, len(in))
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
