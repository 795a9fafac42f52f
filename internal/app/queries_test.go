package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/app"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/storage/memory"
)

// ---- fakes ----

// fakeCache round-trips through JSON like the redis adapter does.
type fakeCache struct {
	store map[string][]byte
	dels  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.dels++
	delete(c.store, key)
	return nil
}

// countingStore records which store methods were reached.
type countingStore struct {
	*memory.Store
	lists, writes int
	failList      error
}

func (s *countingStore) ListReviews(ctx context.Context, st domain.Status) ([]domain.Review, error) {
	s.lists++
	if s.failList != nil {
		return nil, s.failList
	}
	return s.Store.ListReviews(ctx, st)
}
func (s *countingStore) CreateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	s.writes++
	return s.Store.CreateReview(ctx, r)
}
func (s *countingStore) UpdateReview(ctx context.Context, id string, p domain.ReviewPatch) error {
	s.writes++
	return s.Store.UpdateReview(ctx, id, p)
}
func (s *countingStore) DeleteReview(ctx context.Context, id string) error {
	s.writes++
	return s.Store.DeleteReview(ctx, id)
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seeded() *memory.Store {
	s := memory.New()
	s.Seed(
		domain.Review{ID: "r1", Title: "Dune Part Two", Body: "Spice everywhere", Category: domain.CategoryMovie, AuthorID: "ZRX-AAAAAA-7X9", Status: domain.StatusApproved, Likes: 5, Dislikes: 1, CreatedAt: now.Add(-time.Hour)},
		domain.Review{ID: "r2", Title: "Elden Ring", Body: "Hard but fair", Category: domain.CategoryGame, AuthorID: domain.AnonymousAuthor, Status: domain.StatusApproved, Likes: 4, CreatedAt: now.Add(-2 * time.Hour)},
		domain.Review{ID: "r3", Title: "Shogun", Body: "Great SPICE of drama", Category: domain.CategoryShow, AuthorID: "ZRX-AAAAAA-7X9", Status: domain.StatusApproved, Likes: 6, Dislikes: 2, CreatedAt: now.AddDate(0, 0, -10)},
		domain.Review{ID: "r4", Title: "Old book", Body: "Dusty", Category: domain.CategoryBook, AuthorID: "QLP-BBBBBB-2K4", Status: domain.StatusApproved, Dislikes: 3, CreatedAt: now.AddDate(0, -2, 0)},
		domain.Review{ID: "r5", Title: "Hidden", Body: "Pending spice", Category: domain.CategoryMovie, AuthorID: "ZRX-AAAAAA-7X9", Status: domain.StatusPending, CreatedAt: now},
	)
	return s
}

func ids(rs []domain.Review) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func loaded(t *testing.T, s domain.ReviewStore, c domain.Cache) *app.Catalog {
	t.Helper()
	cat := app.NewCatalog(s, c, time.Minute).WithClock(func() time.Time { return now })
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return cat
}

// ---- tests ----

func TestCatalog_RefreshOnlyApprovedNewestFirst(t *testing.T) {
	cat := loaded(t, seeded(), nil)
	if diff := cmp.Diff([]string{"r1", "r2", "r3", "r4"}, ids(cat.All())); diff != "" {
		t.Fatalf("snapshot order (-want +got):\n%s", diff)
	}
}

func TestCatalog_CacheMissThenHit(t *testing.T) {
	store := &countingStore{Store: seeded()}
	cache := &fakeCache{}
	cat := loaded(t, store, cache)
	if store.lists != 1 {
		t.Fatalf("expected one store read, got %d", store.lists)
	}

	// second refresh is served from cache
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if store.lists != 1 {
		t.Fatalf("expected cache hit, store read %d times", store.lists)
	}
	if cat.Len() != 4 {
		t.Fatalf("cached snapshot has %d reviews", cat.Len())
	}

	// invalidation forces the store again
	cat.Invalidate(context.Background())
	_ = cat.Refresh(context.Background())
	if store.lists != 2 {
		t.Fatalf("expected store read after invalidate, got %d", store.lists)
	}
}

func TestCatalog_RefreshFailureKeepsSnapshot(t *testing.T) {
	store := &countingStore{Store: seeded()}
	cat := loaded(t, store, nil)

	store.failList = errors.New("connection reset")
	err := cat.Refresh(context.Background())
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if cat.Len() != 4 {
		t.Fatalf("snapshot should survive a failed refresh, have %d", cat.Len())
	}
}

func TestCatalog_Search(t *testing.T) {
	cat := loaded(t, seeded(), nil)

	cases := []struct {
		q    string
		cat  domain.Category
		want []string
	}{
		{"", domain.CategoryAll, []string{"r1", "r2", "r3", "r4"}},
		{"spice", domain.CategoryAll, []string{"r1", "r3"}},
		{"SPICE", domain.CategoryMovie, []string{"r1"}},
		{"anonymous", domain.CategoryAll, []string{"r2"}},
		{"zrx-aaaaaa", domain.CategoryAll, []string{"r1", "r3"}},
		{"", domain.CategoryBook, []string{"r4"}},
		{"nothing matches", domain.CategoryAll, []string{}},
	}
	for _, c := range cases {
		got := ids(cat.Search(c.q, c.cat))
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("Search(%q, %q) (-want +got):\n%s", c.q, c.cat, diff)
		}
	}
}

func TestCatalog_Top(t *testing.T) {
	cat := loaded(t, seeded(), nil)

	// r1, r2 and r3 all score 4; snapshot order breaks the tie.
	got := ids(cat.Top(app.TopQuery{Window: app.WindowAll}))
	if diff := cmp.Diff([]string{"r1", "r2", "r3", "r4"}, got); diff != "" {
		t.Fatalf("all-time (-want +got):\n%s", diff)
	}

	got = ids(cat.Top(app.TopQuery{Window: app.WindowWeek}))
	if diff := cmp.Diff([]string{"r1", "r2"}, got); diff != "" {
		t.Fatalf("week (-want +got):\n%s", diff)
	}

	got = ids(cat.Top(app.TopQuery{Window: app.WindowMonth, Category: domain.CategoryShow}))
	if diff := cmp.Diff([]string{"r3"}, got); diff != "" {
		t.Fatalf("month/show (-want +got):\n%s", diff)
	}

	got = ids(cat.Top(app.TopQuery{Window: app.WindowYear, Limit: 2}))
	if len(got) != 2 {
		t.Fatalf("limit ignored: %v", got)
	}
}

func TestParseWindow(t *testing.T) {
	for in, want := range map[string]app.Window{"": app.WindowAll, "Week": app.WindowWeek, "month": app.WindowMonth, " year ": app.WindowYear} {
		if w, err := app.ParseWindow(in); err != nil || w != want {
			t.Errorf("ParseWindow(%q) = %q, %v", in, w, err)
		}
	}
	if _, err := app.ParseWindow("decade"); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestCatalog_Stats(t *testing.T) {
	cat := loaded(t, seeded(), nil)

	want := app.SiteStats{TotalReviews: 4, TotalVotes: 4 + 4 + 4 - 3, ActiveUsers: 2}
	if diff := cmp.Diff(want, cat.Stats()); diff != "" {
		t.Fatalf("stats (-want +got):\n%s", diff)
	}

	as := cat.AuthorStats("ZRX-AAAAAA-7X9")
	if as.Reviews != 2 || as.VotesReceived != 8 {
		t.Fatalf("author stats: %+v", as)
	}
	if got := ids(cat.ByAuthor("ZRX-AAAAAA-7X9")); !cmp.Equal(got, []string{"r1", "r3"}) {
		t.Fatalf("by author: %v", got)
	}
	if _, ok := cat.Get("r5"); ok {
		t.Fatalf("pending review must not be in the snapshot")
	}
}

func TestCatalog_EmptyStats(t *testing.T) {
	cat := loaded(t, memory.New(), nil)
	if got := cat.Stats(); got != (app.SiteStats{}) {
		t.Fatalf("expected zero stats, got %+v", got)
	}
}
