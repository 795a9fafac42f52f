package domain

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

type Category string

const (
	CategoryMovie   Category = "movie"
	CategoryShow    Category = "show"
	CategoryBook    Category = "book"
	CategoryPodcast Category = "podcast"
	CategoryGame    Category = "game"

	// CategoryAll is a query value only; it never appears on a stored review.
	CategoryAll Category = "all"
)

var Categories = []Category{CategoryMovie, CategoryShow, CategoryBook, CategoryPodcast, CategoryGame}

func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCategoryFilter maps "" and "all" to CategoryAll.
func ParseCategoryFilter(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" || c == CategoryAll {
		return CategoryAll, nil
	}
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalid, s)
	}
	return c, nil
}

type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
)

const (
	MaxTitleLen = 120
	MaxBodyLen  = 280
	MaxRating   = 5.0

	AnonymousAuthor = "anonymous"
)

type Review struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"review"`
	Category  Category  `json:"category"`
	Rating    float64   `json:"rating"`
	ImageURL  string    `json:"image_url,omitempty"`
	AuthorID  string    `json:"author_id"`
	Status    Status    `json:"status"`
	Likes     int       `json:"likes"`
	Dislikes  int       `json:"dislikes"`
	CreatedAt time.Time `json:"created_at"`
}

func (r Review) Tally() Tally { return Tally{Likes: r.Likes, Dislikes: r.Dislikes} }

func (r Review) Score() int { return r.Tally().Score() }

// AuthorName is what readers see and what search matches against.
func (r Review) AuthorName() string {
	if r.AuthorID == "" || r.AuthorID == AnonymousAuthor {
		return "Anonymous"
	}
	return r.AuthorID
}

func (r Review) AvatarURL() string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(r.AuthorName()) + "&background=00ff41&color=000"
}

// ReviewDraft is the user-supplied part of a review.
type ReviewDraft struct {
	Title    string
	Body     string
	Category Category
	Rating   float64
	ImageURL string
}

// Normalize trims text, clamps the rating and reports the first invalid field.
func (d ReviewDraft) Normalize() (ReviewDraft, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Body = strings.TrimSpace(d.Body)
	d.Category = Category(strings.ToLower(string(d.Category)))
	d.Rating = ClampRating(d.Rating)

	switch {
	case d.Title == "":
		return d, fmt.Errorf("%w: title is required", ErrInvalid)
	case len([]rune(d.Title)) > MaxTitleLen:
		return d, fmt.Errorf("%w: title must be at most %d characters", ErrInvalid, MaxTitleLen)
	case d.Body == "":
		return d, fmt.Errorf("%w: review is required", ErrInvalid)
	case len([]rune(d.Body)) > MaxBodyLen:
		return d, fmt.Errorf("%w: review must be at most %d characters", ErrInvalid, MaxBodyLen)
	case !d.Category.Valid():
		return d, fmt.Errorf("%w: unknown category %q", ErrInvalid, d.Category)
	}
	return d, nil
}

// ClampRating pins r to [0,5] with one decimal. NaN becomes 0.
func ClampRating(r float64) float64 {
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > MaxRating {
		return MaxRating
	}
	return math.Round(r*10) / 10
}

// ReviewPatch is a full replacement of the editable fields.
type ReviewPatch struct {
	Title    string
	Body     string
	Category Category
	Rating   float64
	ImageURL string
}

func (d ReviewDraft) Patch() ReviewPatch {
	return ReviewPatch{Title: d.Title, Body: d.Body, Category: d.Category, Rating: d.Rating, ImageURL: d.ImageURL}
}
