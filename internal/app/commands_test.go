package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/access"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/app"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const voter = "ZRX-AAAAAA-7X9"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func unlocked() context.Context {
	return access.WithSession(context.Background(), access.Session{BrowserID: voter, CodeAccess: true})
}

func locked() context.Context {
	return access.WithSession(context.Background(), access.Session{BrowserID: voter})
}

type fixture struct {
	store *countingStore
	cat   *app.Catalog
	cmd   *app.CommandService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s := &countingStore{Store: memory.New()}
	cat := app.NewCatalog(s, &fakeCache{}, time.Minute)
	return fixture{store: s, cat: cat, cmd: app.NewCommandService(s, cat, app.NewImageEncoder(1<<20, nil))}
}

func draft() domain.ReviewDraft {
	return domain.ReviewDraft{Title: "Arrival", Body: "Language is time.", Category: "movie", Rating: 4.5}
}

func TestSubmit_WithoutAccessNeverReachesStore(t *testing.T) {
	f := newFixture(t)
	for _, ctx := range []context.Context{context.Background(), locked()} {
		if _, err := f.cmd.Submit(ctx, draft(), nil); !errors.Is(err, domain.ErrAccessDenied) {
			t.Fatalf("expected ErrAccessDenied, got %v", err)
		}
	}
	if err := f.cmd.Delete(locked(), "x"); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("delete: expected ErrAccessDenied, got %v", err)
	}
	if _, err := f.cmd.Update(locked(), "x", app.UpdateInput{Draft: draft()}); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("update: expected ErrAccessDenied, got %v", err)
	}
	if f.store.writes != 0 {
		t.Fatalf("store was written %d times", f.store.writes)
	}
}

func TestSubmit_RefreshesCatalog(t *testing.T) {
	f := newFixture(t)
	r, err := f.cmd.Submit(unlocked(), draft(), pngBytes)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.AuthorID != voter || r.Status != domain.StatusApproved || r.Likes != 0 || r.Dislikes != 0 {
		t.Fatalf("unexpected review: %+v", r)
	}
	if !strings.HasPrefix(r.ImageURL, "data:image/png;base64,") {
		t.Fatalf("image not encoded: %q", r.ImageURL)
	}
	got, ok := f.cat.Get(r.ID)
	if !ok || got.Title != "Arrival" {
		t.Fatalf("catalog not refreshed: %+v %v", got, ok)
	}
}

func TestSubmit_Invalid(t *testing.T) {
	f := newFixture(t)
	d := draft()
	d.Body = strings.Repeat("x", domain.MaxBodyLen+1)
	if _, err := f.cmd.Submit(unlocked(), d, nil); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := f.cmd.Submit(unlocked(), draft(), []byte("plain text, not an image")); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for non-image, got %v", err)
	}
	if f.store.writes != 0 {
		t.Fatalf("invalid submit reached the store")
	}
}

func TestUpdate_ImageHandling(t *testing.T) {
	f := newFixture(t)
	r, err := f.cmd.Submit(unlocked(), draft(), pngBytes)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	d := draft()
	d.Title = "Arrival (2016)"
	up, err := f.cmd.Update(unlocked(), r.ID, app.UpdateInput{Draft: d})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.Title != "Arrival (2016)" || up.ImageURL != r.ImageURL {
		t.Fatalf("image should be kept: %+v", up)
	}

	up, err = f.cmd.Update(unlocked(), r.ID, app.UpdateInput{Draft: d, RemoveImage: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.ImageURL != "" {
		t.Fatalf("image should be removed: %q", up.ImageURL)
	}
	if got, _ := f.cat.Get(r.ID); got.ImageURL != "" || got.Title != "Arrival (2016)" {
		t.Fatalf("catalog stale: %+v", got)
	}

	if _, err := f.cmd.Update(unlocked(), "missing", app.UpdateInput{Draft: d}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	r, _ := f.cmd.Submit(unlocked(), draft(), nil)
	if _, err := f.cmd.Vote(locked(), r.ID, domain.VoteLike); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.cmd.Delete(unlocked(), r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := f.cat.Get(r.ID); ok {
		t.Fatalf("deleted review still in catalog")
	}
	if n := len(f.store.Votes(r.ID)); n != 0 {
		t.Fatalf("votes not cascaded: %d", n)
	}
	if err := f.cmd.Delete(unlocked(), r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestVote_Scenarios(t *testing.T) {
	f := newFixture(t)
	r, _ := f.cmd.Submit(unlocked(), draft(), nil)

	// voting needs no access code
	out, err := f.cmd.Vote(locked(), r.ID, domain.VoteLike)
	if err != nil || !out.Changed || out.Tally != (domain.Tally{Likes: 1}) {
		t.Fatalf("first like: %+v %v", out, err)
	}

	// same kind again is a no-op
	out, err = f.cmd.Vote(locked(), r.ID, domain.VoteLike)
	if err != nil || out.Changed || out.Tally != (domain.Tally{Likes: 1}) {
		t.Fatalf("repeat like: %+v %v", out, err)
	}

	// switching moves the vote
	out, err = f.cmd.Vote(locked(), r.ID, domain.VoteDislike)
	if err != nil || !out.Changed || out.Previous != domain.VoteLike || out.Tally != (domain.Tally{Dislikes: 1}) {
		t.Fatalf("switch: %+v %v", out, err)
	}
	if got, _ := f.cat.Get(r.ID); got.Tally() != (domain.Tally{Dislikes: 1}) {
		t.Fatalf("catalog tally: %+v", got.Tally())
	}

	// a second voter adds to the tally
	other := access.WithSession(context.Background(), access.Session{BrowserID: "QLP-BBBBBB-2K4"})
	out, _ = f.cmd.Vote(other, r.ID, domain.VoteDislike)
	if out.Tally != (domain.Tally{Dislikes: 2}) {
		t.Fatalf("second voter: %+v", out.Tally)
	}

	if _, err := f.cmd.Vote(locked(), "missing", domain.VoteLike); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.cmd.Vote(context.Background(), r.ID, domain.VoteLike); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid without session, got %v", err)
	}
}

func TestDecodeDataURL(t *testing.T) {
	b, err := app.DecodeDataURL("data:image/png;base64,aGVsbG8=")
	if err != nil || string(b) != "hello" {
		t.Fatalf("decode: %q %v", b, err)
	}
	for _, bad := range []string{"hello", "data:image/png,raw", "data:image/png;base64,%%%"} {
		if _, err := app.DecodeDataURL(bad); !errors.Is(err, domain.ErrInvalid) {
			t.Errorf("DecodeDataURL(%q): expected ErrInvalid, got %v", bad, err)
		}
	}
}

type fakeSink struct{ got string }

func (s *fakeSink) Put(ctx context.Context, dataURL string) (string, error) {
	s.got = dataURL
	return "https://res.example.com/img.png", nil
}

func TestImageEncoder(t *testing.T) {
	enc := app.NewImageEncoder(8, nil)
	if _, err := enc.Encode(context.Background(), pngBytes); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("oversize: expected ErrInvalid, got %v", err)
	}
	if u, err := enc.Encode(context.Background(), nil); err != nil || u != "" {
		t.Fatalf("empty: %q %v", u, err)
	}

	sink := &fakeSink{}
	u, err := app.NewImageEncoder(0, sink).Encode(context.Background(), pngBytes)
	if err != nil || u != "https://res.example.com/img.png" {
		t.Fatalf("sink: %q %v", u, err)
	}
	if !strings.HasPrefix(sink.got, "data:image/png;base64,") {
		t.Fatalf("sink received %q", sink.got)
	}
}
