package access

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/identity"
)

const testSecret = "0123456789abcdef-test"

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate("2580", testSecret, time.Hour, false)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestGate_VerifyAndLogout(t *testing.T) {
	g := newTestGate(t)
	s := g.NewSession()
	if s.CodeAccess || !identity.Valid(s.BrowserID) {
		t.Fatalf("unexpected fresh session: %+v", s)
	}

	if _, err := g.Verify(s, "1234"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	unlocked, err := g.Verify(s, " 2580 ")
	if err != nil || !unlocked.CodeAccess {
		t.Fatalf("verify: %+v %v", unlocked, err)
	}
	if unlocked.BrowserID != s.BrowserID {
		t.Fatalf("verify must keep the identity")
	}

	out := g.Logout(unlocked)
	if out.CodeAccess || out.BrowserID != s.BrowserID {
		t.Fatalf("logout: %+v", out)
	}
}

func TestGate_EncodeDecode(t *testing.T) {
	g := newTestGate(t)
	s, _ := g.Verify(g.NewSession(), "2580")

	raw, err := g.Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := g.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BrowserID != s.BrowserID || !got.CodeAccess {
		t.Fatalf("round trip lost data: %+v", got)
	}

	other, _ := NewGate("2580", "another-secret-value!", time.Hour, false)
	if _, err := other.Decode(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestGate_DecodeExpired(t *testing.T) {
	g := newTestGate(t)
	g.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	raw, err := g.Encode(g.NewSession())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	g.now = time.Now
	s, err := g.Decode(raw)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if !identity.Valid(s.BrowserID) {
		t.Fatalf("expired token should still carry its identity: %+v", s)
	}

	other, _ := NewGate("2580", "another-secret-value!", time.Hour, false)
	if _, err := other.Decode(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token with a foreign signature: %v", err)
	}
}

func TestGate_Middleware(t *testing.T) {
	g := newTestGate(t)

	var seen Session
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	// no cookie: a new locked session is minted and issued
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen.CodeAccess || !identity.Valid(seen.BrowserID) {
		t.Fatalf("unexpected session %+v", seen)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("expected session cookie, got %v", cookies)
	}

	// the cookie is honoured on the next request
	first := seen.BrowserID
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen.BrowserID != first {
		t.Fatalf("identity changed across requests: %s != %s", seen.BrowserID, first)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("fresh session should not be reissued")
	}

	// bearer wins over cookie
	unlocked, _ := g.Verify(g.NewSession(), "2580")
	raw, _ := g.Encode(unlocked)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !seen.CodeAccess || seen.BrowserID != unlocked.BrowserID {
		t.Fatalf("bearer session not used: %+v", seen)
	}

	// a malformed bearer falls back to the cookie
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen.BrowserID != first {
		t.Fatalf("cookie session not used: %+v", seen)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("cookie session should not be reissued")
	}

	// nothing decodes: a new identity
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen.BrowserID == first || !identity.Valid(seen.BrowserID) {
		t.Fatalf("expected a freshly minted identity, got %+v", seen)
	}
}

// fakeClock drives both the gate and jwt expiry checks.
func fakeClock(t *testing.T, g *Gate) *time.Time {
	t.Helper()
	now := time.Now()
	g.now = func() time.Time { return now }
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = time.Now })
	return &now
}

func TestGate_MiddlewareRenewsActiveSession(t *testing.T) {
	g := newTestGate(t)
	now := fakeClock(t, g)

	var seen Session
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	first := seen.BrowserID
	cookie := rr.Result().Cookies()[0]

	// one request every 30 minutes against a one hour lifetime
	reissued := 0
	for step := 1; step <= 6; step++ {
		*now = now.Add(30 * time.Minute)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if seen.BrowserID != first {
			t.Fatalf("t+%dm: identity changed %s -> %s", step*30, first, seen.BrowserID)
		}
		if cs := rr.Result().Cookies(); len(cs) == 1 {
			cookie = cs[0]
			reissued++
		}
	}
	if reissued == 0 {
		t.Fatalf("session was never renewed")
	}
}

func TestGate_MiddlewareRenewsExpiredSession(t *testing.T) {
	g := newTestGate(t)
	now := fakeClock(t, g)

	unlocked, _ := g.Verify(g.NewSession(), "2580")
	raw, err := g.Encode(unlocked)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	*now = now.Add(3 * time.Hour)

	var seen Session
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen.BrowserID != unlocked.BrowserID || !seen.CodeAccess {
		t.Fatalf("expired session lost its state: %+v", seen)
	}
	fresh := rr.Header().Get(TokenHeader)
	if fresh == "" {
		t.Fatalf("expired session was not reissued")
	}
	got, err := g.Decode(fresh)
	if err != nil || got.BrowserID != unlocked.BrowserID {
		t.Fatalf("reissued token: %+v %v", got, err)
	}
}

func TestRequireCapability(t *testing.T) {
	g := newTestGate(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, err := RequireCapability(req.Context()); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("no session: %v", err)
	}
	ctx := WithSession(req.Context(), g.NewSession())
	if _, err := RequireCapability(ctx); !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("locked session: %v", err)
	}
	s, _ := g.Verify(g.NewSession(), "2580")
	if _, err := RequireCapability(WithSession(ctx, s)); err != nil {
		t.Fatalf("unlocked session: %v", err)
	}
}
