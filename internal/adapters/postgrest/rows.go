package postgrest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

// flexID accepts numeric or string primary keys.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// reviewRow tolerates the nulls older rows carry.
type reviewRow struct {
	ID        flexID     `json:"id"`
	Title     *string    `json:"title"`
	Review    *string    `json:"review"`
	Category  *string    `json:"category"`
	Rating    *float64   `json:"rating"`
	ImageURL  *string    `json:"image_url"`
	AuthorID  *string    `json:"author_id"`
	Status    *string    `json:"status"`
	Likes     *int       `json:"likes"`
	Dislikes  *int       `json:"dislikes"`
	CreatedAt *time.Time `json:"created_at"`
}

func (r reviewRow) toDomain() domain.Review {
	out := domain.Review{
		ID:       string(r.ID),
		Title:    str(r.Title),
		Body:     str(r.Review),
		Category: domain.Category(strings.ToLower(str(r.Category))),
		ImageURL: str(r.ImageURL),
		AuthorID: str(r.AuthorID),
		Status:   domain.Status(str(r.Status)),
	}
	if out.AuthorID == "" {
		out.AuthorID = domain.AnonymousAuthor
	}
	if out.Status == "" {
		out.Status = domain.StatusApproved
	}
	if r.Rating != nil {
		out.Rating = domain.ClampRating(*r.Rating)
	}
	if r.Likes != nil {
		out.Likes = *r.Likes
	}
	if r.Dislikes != nil {
		out.Dislikes = *r.Dislikes
	}
	if r.CreatedAt != nil {
		out.CreatedAt = r.CreatedAt.UTC()
	}
	return out
}

type voteRow struct {
	ID       flexID `json:"id,omitempty"`
	ReviewID flexID `json:"review_id"`
	UserIP   string `json:"user_ip"`
	VoteType string `json:"vote_type"`
}

func (v voteRow) toDomain() domain.Vote {
	return domain.Vote{ID: string(v.ID), ReviewID: string(v.ReviewID), VoterID: v.UserIP, Kind: domain.VoteKind(v.VoteType)}
}

// insertReview is the body of a create; id and created_at are left to the
// database defaults.
type insertReview struct {
	Title    string  `json:"title"`
	Review   string  `json:"review"`
	Category string  `json:"category"`
	Rating   float64 `json:"rating"`
	ImageURL *string `json:"image_url"`
	AuthorID string  `json:"author_id"`
	Status   string  `json:"status"`
	Likes    int     `json:"likes"`
	Dislikes int     `json:"dislikes"`
}

type patchReview struct {
	Title    string  `json:"title"`
	Review   string  `json:"review"`
	Category string  `json:"category"`
	Rating   float64 `json:"rating"`
	ImageURL *string `json:"image_url"`
}

type patchTally struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

// upsertVote keys on (review_id, user_ip). review_id is sent as a number
// when it looks like one so bigint keys compare correctly.
type upsertVote struct {
	ReviewID any    `json:"review_id"`
	UserIP   string `json:"user_ip"`
	VoteType string `json:"vote_type"`
}

func reviewKey(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// tallies counts votes per review id.
func tallies(vs []voteRow) map[string]domain.Tally {
	by := map[string][]domain.Vote{}
	for _, v := range vs {
		by[string(v.ReviewID)] = append(by[string(v.ReviewID)], v.toDomain())
	}
	out := make(map[string]domain.Tally, len(by))
	for id, votes := range by {
		out[id] = domain.Count(votes)
	}
	return out
}
