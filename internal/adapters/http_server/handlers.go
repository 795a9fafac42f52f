package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/access"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/observability"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/app"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

const maxTopLimit = 100

type Handlers struct {
	Catalog       *app.Catalog
	Commands      *app.CommandService
	Gate          *access.Gate
	MaxImageBytes int
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// reviewView adds the derived display fields to a stored review.
type reviewView struct {
	domain.Review
	AuthorName string `json:"author_name"`
	AvatarURL  string `json:"avatar_url"`
	Score      int    `json:"score"`
}

type listResponse struct {
	Items []reviewView `json:"items"`
	Count int          `json:"count"`
}

type sessionView struct {
	BrowserID  string `json:"browser_id"`
	CodeAccess bool   `json:"code_access"`
	Token      string `json:"token,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Use(Sessions(h.Gate, log.Logger))

		r.Get("/session", h.getSession)
		r.Post("/access/verify", h.verifyAccess)
		r.Post("/access/logout", h.logout)

		r.Get("/reviews", h.searchReviews)
		r.Post("/reviews", h.submitReview)
		r.Get("/reviews/top", h.topReviews)
		r.Get("/reviews/mine", h.myReviews)
		r.Get("/reviews/{id}", h.getReview)
		r.Patch("/reviews/{id}", h.updateReview)
		r.Delete("/reviews/{id}", h.deleteReview)
		r.Post("/reviews/{id}/vote", h.vote)

		r.Get("/authors/{id}/reviews", h.authorReviews)
		r.Get("/stats", h.stats)
		r.Post("/refresh", h.refresh)
	})
}

// ---- responses ----

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps typed errors onto problem responses. Backend details stay
// in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrInvalidCode):
		writeProblem(w, http.StatusUnauthorized, "Invalid Code", "the access code is not correct")
	case errors.Is(err, domain.ErrAccessDenied):
		writeProblem(w, http.StatusForbidden, "Access Required", "enter the access code to add, edit or delete reviews")
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "review not found")
	case errors.Is(err, errTooLarge):
		writeProblem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", err.Error())
	case errors.Is(err, domain.ErrInvalid):
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusGatewayTimeout, "Timeout", "the review store did not answer in time")
	case errors.Is(err, domain.ErrBackend):
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("backend failure")
		writeProblem(w, http.StatusBadGateway, "Backend Unavailable", "the review store is unavailable, try again")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("unexpected failure")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "something went wrong")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeCached answers 304 when the client already holds this version.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); etag != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func view(r domain.Review) reviewView {
	return reviewView{Review: r, AuthorName: r.AuthorName(), AvatarURL: r.AvatarURL(), Score: r.Score()}
}

func list(rs []domain.Review) listResponse {
	out := listResponse{Items: make([]reviewView, 0, len(rs)), Count: len(rs)}
	for _, r := range rs {
		out.Items = append(out.Items, view(r))
	}
	return out
}

func session(r *http.Request) access.Session {
	s, _ := access.FromContext(r.Context())
	return s
}

// ---- session ----

func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s := session(r)
	writeJSON(w, http.StatusOK, sessionView{BrowserID: s.BrowserID, CodeAccess: s.CodeAccess})
}

func (h *Handlers) verifyAccess(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, smallBodyBytes)
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := check(&req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.Gate.Verify(session(r), req.Code)
	if err != nil {
		zerolog.Ctx(r.Context()).Info().Msg("access code rejected")
		writeError(w, r, err)
		return
	}
	h.issue(w, r, s)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, h.Gate.Logout(session(r)))
}

func (h *Handlers) issue(w http.ResponseWriter, r *http.Request, s access.Session) {
	tok, err := h.Gate.Issue(w, s)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{BrowserID: s.BrowserID, CodeAccess: s.CodeAccess, Token: tok})
}

// ---- reads ----

func (h *Handlers) searchReviews(w http.ResponseWriter, r *http.Request) {
	cat, err := domain.ParseCategoryFilter(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, list(h.Catalog.Search(r.URL.Query().Get("q"), cat)))
}

func (h *Handlers) topReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cat, err := domain.ParseCategoryFilter(q.Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	win, err := app.ParseWindow(q.Get("window"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit := 10
	if ls := q.Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > maxTopLimit {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
			return
		}
		limit = l
	}
	writeCached(w, r, list(h.Catalog.Top(app.TopQuery{Category: cat, Window: win, Limit: limit})))
}

func (h *Handlers) myReviews(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, list(h.Catalog.ByAuthor(session(r).BrowserID)))
}

func (h *Handlers) authorReviews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeCached(w, r, struct {
		Author app.AuthorStats `json:"author"`
		listResponse
	}{h.Catalog.AuthorStats(id), list(h.Catalog.ByAuthor(id))})
}

func (h *Handlers) getReview(w http.ResponseWriter, r *http.Request) {
	rv, ok := h.Catalog.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, r, domain.ErrNotFound)
		return
	}
	writeCached(w, r, view(rv))
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, h.Catalog.Stats())
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	h.Catalog.Invalidate(r.Context())
	if err := h.Catalog.Refresh(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Count    int       `json:"count"`
		LoadedAt time.Time `json:"loaded_at"`
	}{h.Catalog.Len(), h.Catalog.LoadedAt()})
}

// ---- writes ----

func (h *Handlers) submitReview(w http.ResponseWriter, r *http.Request) {
	// capability first so a locked browser never uploads or validates
	if _, err := access.RequireCapability(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := readReview(w, r, h.MaxImageBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Commands.Submit(r.Context(), req.draft(), req.imageBytes)
	observability.ObserveMutation("submit", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/reviews/"+rv.ID)
	writeJSON(w, http.StatusCreated, view(rv))
}

func (h *Handlers) updateReview(w http.ResponseWriter, r *http.Request) {
	if _, err := access.RequireCapability(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := readReview(w, r, h.MaxImageBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Commands.Update(r.Context(), chi.URLParam(r, "id"), app.UpdateInput{
		Draft:       req.draft(),
		Image:       req.imageBytes,
		RemoveImage: req.RemoveImage,
	})
	observability.ObserveMutation("update", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(rv))
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	err := h.Commands.Delete(r.Context(), chi.URLParam(r, "id"))
	observability.ObserveMutation("delete", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) vote(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, smallBodyBytes)
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := check(&req); err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := domain.ParseVoteKind(req.Vote)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Commands.Vote(r.Context(), chi.URLParam(r, "id"), kind)
	if err != nil {
		observability.ObserveMutation("vote", err)
		writeError(w, r, err)
		return
	}
	observability.ObserveVote(string(kind), out.Changed)
	writeJSON(w, http.StatusOK, out)
}
