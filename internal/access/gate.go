package access

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/rs/zerolog/log"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/identity"
)

const (
	CookieName  = "mw_session"
	TokenHeader = "X-Session-Token"
)

var (
	ErrInvalidCode  = errors.New("invalid access code")
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

type Gate struct {
	code   string
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

type claims struct {
	Access bool `json:"acc"`
	jwt.StandardClaims
}

func NewGate(code, secret string, ttl time.Duration, secureCookie bool) (*Gate, error) {
	if code == "" {
		return nil, fmt.Errorf("access code is required")
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("session secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	return &Gate{code: code, secret: []byte(secret), ttl: ttl, secure: secureCookie, now: time.Now}, nil
}

// NewSession mints a locked session with a fresh pseudo-identity.
func (g *Gate) NewSession() Session {
	return Session{BrowserID: identity.New(), IssuedAt: g.now().UTC()}
}

func (g *Gate) Verify(s Session, code string) (Session, error) {
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(g.code)) != 1 {
		return s, ErrInvalidCode
	}
	s.CodeAccess = true
	return s, nil
}

func (g *Gate) Logout(s Session) Session {
	s.CodeAccess = false
	return s
}

func (g *Gate) Encode(s Session) (string, error) {
	now := g.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Access: s.CodeAccess,
		StandardClaims: jwt.StandardClaims{
			Subject:   s.BrowserID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(g.ttl).Unix(),
		},
	})
	return tok.SignedString(g.secret)
}

// Decode verifies raw. An expired token with a good signature still yields
// its session alongside ErrTokenExpired so the caller can renew it.
func (g *Gate) Decode(raw string) (Session, error) {
	var c claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	})
	expired := false
	if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors == jwt.ValidationErrorExpired {
		expired = true
	} else if err != nil || !tok.Valid {
		return Session{}, ErrInvalidToken
	}
	if !identity.Valid(c.Subject) {
		return Session{}, ErrInvalidToken
	}
	s := Session{
		BrowserID:  c.Subject,
		CodeAccess: c.Access,
		IssuedAt:   time.Unix(c.IssuedAt, 0).UTC(),
	}
	if expired {
		return s, ErrTokenExpired
	}
	return s, nil
}

// Issue writes the session cookie and returns the raw token for bearer clients.
func (g *Gate) Issue(w http.ResponseWriter, s Session) (string, error) {
	raw, err := g.Encode(s)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    raw,
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(TokenHeader, raw)
	return raw, nil
}

// Middleware loads the session from a bearer token or cookie. Sessions past
// half their lifetime, or already expired, are re-issued under the same
// identity; a new one is minted only when nothing decodes.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := g.fromRequest(r)
		switch {
		case err == nil:
			if g.now().Sub(s.IssuedAt) >= g.ttl/2 {
				s = g.renew(w, s)
			}
		case errors.Is(err, ErrTokenExpired):
			log.Debug().Str("browser_id", s.BrowserID).Msg("session expired, renewing")
			s = g.renew(w, s)
		default:
			if !errors.Is(err, http.ErrNoCookie) {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("session rejected, minting a new one")
			}
			s = g.renew(w, g.NewSession())
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func (g *Gate) renew(w http.ResponseWriter, s Session) Session {
	s.IssuedAt = g.now().UTC()
	if _, err := g.Issue(w, s); err != nil {
		log.Error().Err(err).Msg("issue session failed")
	}
	return s
}

// fromRequest prefers the bearer token and falls back to the cookie when the
// bearer does not decode.
func (g *Gate) fromRequest(r *http.Request) (Session, error) {
	var bearerErr error
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			s, err := g.Decode(strings.TrimSpace(parts[1]))
			if err == nil || errors.Is(err, ErrTokenExpired) {
				return s, err
			}
			bearerErr = err
		}
	}
	c, err := r.Cookie(CookieName)
	if err != nil {
		if bearerErr != nil {
			return Session{}, bearerErr
		}
		return Session{}, err
	}
	return g.Decode(c.Value)
}
