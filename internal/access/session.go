// Package access holds the shared-code gate that unlocks review editing.
//
// The gate is a convenience, not a security boundary: the code is shared by
// everyone who edits, and a session only proves that its browser once typed
// it. What used to live in browser storage (the pseudo-identity and the
// unlocked flag) travels in a signed session token and reaches handlers
// through the request context.
package access

import (
	"context"
	"time"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

type Session struct {
	BrowserID  string    `json:"browser_id"`
	CodeAccess bool      `json:"code_access"`
	IssuedAt   time.Time `json:"issued_at"`
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}

// RequireCapability fails unless the request carries an unlocked session.
func RequireCapability(ctx context.Context) (Session, error) {
	s, ok := FromContext(ctx)
	if !ok || !s.CodeAccess {
		return s, domain.ErrAccessDenied
	}
	return s, nil
}
